package core

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}

	return string(buf[pos:])
}

// channelID packs an output kind and index into the one-byte channel field
// of a TimingEvent: fuel channels are 0-7, ignition channels 0x10-0x17.
func channelID(kind OutputKind, index uint8) uint8 {
	if kind == OutputIgnition {
		return 0x10 | index
	}
	return index
}

// channelName renders a channel id as "inj3" or "ign1" (1-based).
func channelName(id uint8) string {
	if id&0x10 != 0 {
		return "ign" + utoa(uint32(id&0x0F)+1)
	}
	return "inj" + utoa(uint32(id)+1)
}
