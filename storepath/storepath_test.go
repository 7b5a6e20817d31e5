package storepath

import "testing"

func TestIsDerivation(t *testing.T) {
	drv := MustParse("7h7qgvs8m7hl6dkp9jkrwn8dfmcy9swv-hello-2.12.1.drv")
	out := MustParse("7h7qgvs8m7hl6dkp9jkrwn8dfmcy9swv-hello-2.12.1")

	if !drv.IsDerivation() {
		t.Errorf("expected %s to be a derivation", drv)
	}
	if out.IsDerivation() {
		t.Errorf("expected %s not to be a derivation", out)
	}
}

func TestStringRoundTrip(t *testing.T) {
	const name = "7h7qgvs8m7hl6dkp9jkrwn8dfmcy9swv-hello-2.12.1"
	sp := MustParse(name)
	if sp.String() != name {
		t.Errorf("String() = %q, want %q", sp.String(), name)
	}
}

func TestEqualityAsMapKey(t *testing.T) {
	a := MustParse("7h7qgvs8m7hl6dkp9jkrwn8dfmcy9swv-hello-2.12.1")
	b := MustParse("7h7qgvs8m7hl6dkp9jkrwn8dfmcy9swv-hello-2.12.1")

	m := map[StorePath]int{a: 1}
	if _, ok := m[b]; !ok {
		t.Errorf("equal store paths did not compare equal as map keys")
	}
}
