package bitutil

const escapeByte = 0xA3

// ByteStuff escapes every occurrence of stuffingByte and of the escape byte
// itself inside data, using the two-byte substitutions {0xA3,0x3A} and
// {0xA3,0x33} respectively. stuffingByte differs between the v1 and v2
// legacy packet generations (0xAA and 0x5A).
func ByteStuff(data []byte, stuffingByte byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		switch b {
		case stuffingByte:
			out = append(out, escapeByte, 0x3A)
		case escapeByte:
			out = append(out, escapeByte, 0x33)
		default:
			out = append(out, b)
		}
	}
	return out
}

// ByteUnstuff reverses ByteStuff. A lone escape byte at the end of the
// buffer, or one followed by anything other than 0x3A/0x33, is passed
// through unchanged rather than rejected, matching the reference decoder.
func ByteUnstuff(data []byte, stuffingByte byte) []byte {
	out := make([]byte, 0, len(data))
	n := len(data)
	for i := 0; i < n; i++ {
		if data[i] == escapeByte && i < n-1 {
			switch data[i+1] {
			case 0x3A:
				out = append(out, stuffingByte)
				i++
				continue
			case 0x33:
				out = append(out, escapeByte)
				i++
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}
