package controlsurface

// Key is a decoded keyboard intent.
type Key int

const (
	KeyNone Key = iota
	KeyToggle
	KeyCarrierUp
	KeyCarrierDown
	KeyCarrierUpCoarse
	KeyCarrierDownCoarse
	KeyBeatUp
	KeyBeatDown
	KeyQuit
	// KeyPreset1 + i selects Presets[i]
	KeyPreset1
)

const (
	ctrlC  = 0x03
	escape = 0x1b
)

// DecodeKeys turns raw terminal input into keys. ANSI arrow sequences map to
// the fine carrier (up/down) and beat (right/left) steps. Unknown bytes are
// dropped.
func DecodeKeys(input []byte) []Key {
	var keys []Key
	for i := 0; i < len(input); i++ {
		b := input[i]
		if b == escape && i+2 < len(input) && input[i+1] == '[' {
			switch input[i+2] {
			case 'A':
				keys = append(keys, KeyCarrierUp)
			case 'B':
				keys = append(keys, KeyCarrierDown)
			case 'C':
				keys = append(keys, KeyBeatUp)
			case 'D':
				keys = append(keys, KeyBeatDown)
			}
			i += 2
			continue
		}

		switch {
		case b == ' ' || b == '\r' || b == '\n':
			keys = append(keys, KeyToggle)
		case b == '+' || b == '=':
			keys = append(keys, KeyCarrierUp)
		case b == '-' || b == '_':
			keys = append(keys, KeyCarrierDown)
		case b == '>' || b == '.':
			keys = append(keys, KeyCarrierUpCoarse)
		case b == '<' || b == ',':
			keys = append(keys, KeyCarrierDownCoarse)
		case b == ']':
			keys = append(keys, KeyBeatUp)
		case b == '[':
			keys = append(keys, KeyBeatDown)
		case b == 'q' || b == 'Q' || b == ctrlC:
			keys = append(keys, KeyQuit)
		case b >= '1' && int(b-'1') < len(Presets):
			keys = append(keys, KeyPreset1+Key(b-'1'))
		}
	}
	return keys
}

// Apply performs the action bound to key on c.
// quit is true for KeyQuit.
func (c *Controls) Apply(key Key) (quit bool, err error) {
	switch key {
	case KeyToggle:
		return false, c.TogglePlayback()
	case KeyCarrierUp:
		c.AdjustCarrier(1)
	case KeyCarrierDown:
		c.AdjustCarrier(-1)
	case KeyCarrierUpCoarse:
		c.AdjustCarrier(10)
	case KeyCarrierDownCoarse:
		c.AdjustCarrier(-10)
	case KeyBeatUp:
		c.AdjustBeat(1)
	case KeyBeatDown:
		c.AdjustBeat(-1)
	case KeyQuit:
		return true, nil
	default:
		if key >= KeyPreset1 {
			return false, c.ApplyPreset(int(key - KeyPreset1))
		}
	}
	return false, nil
}
