package ggraph

import "errors"

// ErrHeapEmpty is returned by removeHeapRoot and
// correctHeapRootForLimitExcess when no pseudo-root remains. It is not
// a fatal error: RemoveToLimit treats it as "selection exhausted,
// return what was accumulated" (§4.8, §7).
var ErrHeapEmpty = errors.New("ggraph: heap is empty")

// ErrOvershootCorrectionExhausted signals the overshoot-correction loop
// ran out its bounded number of iterations without converging, which
// §7 classifies as an internal assertion failure (a bug, not a runtime
// condition callers should expect to hit).
var ErrOvershootCorrectionExhausted = errors.New("ggraph: overshoot correction exceeded iteration bound")
