package protocol

// obfuscationKey is the fixed 16-byte XOR key applied to every header and
// payload byte on the wire. This is traffic obfuscation, not encryption:
// it defeats naive protocol fingerprinting and nothing else. The transport
// must be treated as plaintext for threat modeling.
var obfuscationKey = [16]byte{
	0x52, 0x44, 0x43, 0x50, 0x2d, 0x4b, 0x45, 0x59,
	0x2d, 0x30, 0x31, 0x36, 0x42, 0x59, 0x54, 0x45,
}

// Obfuscate XORs b in place with the fixed key. The transform is its own
// inverse, so the same call de-obfuscates.
func Obfuscate(b []byte) {
	for i := range b {
		b[i] ^= obfuscationKey[i&15]
	}
}

// ObfuscateCopy returns an obfuscated copy of b, leaving b untouched.
func ObfuscateCopy(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ obfuscationKey[i&15]
	}
	return out
}
