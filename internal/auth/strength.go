package auth

import (
	"github.com/nbutton23/zxcvbn-go"
)

// StrengthScorer rates a candidate password from 0 (trivial) to 4
// (very strong). The user store consults it when passwords are set.
type StrengthScorer interface {
	Score(password string) int
}

// ZxcvbnScorer scores passwords with the zxcvbn estimator.
type ZxcvbnScorer struct{}

func (ZxcvbnScorer) Score(password string) int {
	return zxcvbn.PasswordStrength(password, nil).Score
}

// NopScorer accepts every password. Used when no strength gate is wanted
// and in tests.
type NopScorer struct{}

func (NopScorer) Score(string) int {
	return 4
}
