package core

// ChannelMask holds one bit per output channel, bit 0 = channel 1.
type ChannelMask uint8

// AllChannels has every channel bit set.
const AllChannels ChannelMask = 0xFF

// Has reports whether channel ch is set.
func (m ChannelMask) Has(ch uint8) bool {
	return m&(1<<ch) != 0
}

// Set sets channel ch.
func (m *ChannelMask) Set(ch uint8) {
	*m |= 1 << ch
}

// Clear clears channel ch.
func (m *ChannelMask) Clear(ch uint8) {
	*m &^= 1 << ch
}

func maskOf(channels ...uint8) ChannelMask {
	var m ChannelMask
	for _, ch := range channels {
		m.Set(ch)
	}
	return m
}
