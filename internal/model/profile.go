package model

import (
	"encoding/json"
	"fmt"
)

type (
	Preferences struct {
		AgeMin uint32 `json:"age_min"`
		AgeMax uint32 `json:"age_max"`
		Gender uint32 `json:"gender"`
	}

	// Profile is the plaintext input that gets split into shares on the
	// client side. The server never stores it.
	Profile struct {
		ID          string      `json:"id"`
		Age         uint32      `json:"age"`
		Gender      uint32      `json:"gender"`
		Interests   []uint32    `json:"interests"`
		Region      uint32      `json:"region"`
		Preferences Preferences `json:"preferences"`
	}
)

func (p *Profile) Validate() error {
	if p.Age == 0 {
		return fmt.Errorf("%w: age is required", ErrValidation)
	}
	if p.Preferences.AgeMax != 0 && p.Preferences.AgeMin > p.Preferences.AgeMax {
		return fmt.Errorf("%w: age_min above age_max", ErrValidation)
	}
	return nil
}

// Encode is the byte form that gets split into shares.
func (p *Profile) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}
