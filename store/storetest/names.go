package storetest

// nixBase32Alphabet is Nix's store-hash alphabet: lowercase alphanumeric
// excluding e, o, u, t (chosen upstream to avoid visually confusable
// characters). Test fixtures need syntactically valid 32-character
// hashes to satisfy storepath's underlying parser, so Hash deterministically
// encodes an integer into this alphabet rather than hand-writing hashes.
const nixBase32Alphabet = "0123456789abcdfghijklmnpqrsvwxyz"

// Hash returns a syntactically valid, deterministic 32-character
// store-path hash for use in test fixtures. Distinct n produce distinct
// hashes.
func Hash(n int) string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = nixBase32Alphabet[0]
	}
	i := len(b) - 1
	if n == 0 {
		return string(b)
	}
	for n > 0 && i >= 0 {
		b[i] = nixBase32Alphabet[n%len(nixBase32Alphabet)]
		n /= len(nixBase32Alphabet)
		i--
	}
	return string(b)
}

// Name returns a full store-path name "<hash>-<label>" for fixture n.
func Name(n int, label string) string {
	return Hash(n) + "-" + label
}
