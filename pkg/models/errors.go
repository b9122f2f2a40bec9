package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the exploitation core. Components wrap these
// with %w so the loop can classify failures without string matching.
var (
	// ErrValidation marks malformed requests or missing campaign
	// references. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrDependencyTransient marks a network-level failure against the
	// chat provider, the target, or a store. Retried inside the component.
	ErrDependencyTransient = errors.New("transient dependency error")

	// ErrDependencyPermanent marks a failure that survived retries (4xx,
	// persistent schema-parse failure). The step fails; the loop decides
	// whether to degrade or abort.
	ErrDependencyPermanent = errors.New("permanent dependency error")

	// ErrPolicyDenied marks an attack vector disallowed by campaign or
	// blueprint policy. The loop skips straight to adaptation.
	ErrPolicyDenied = errors.New("policy denied")

	// ErrPayloadGeneration marks an articulation step that produced zero
	// payloads even after the neutral-framing retry.
	ErrPayloadGeneration = errors.New("payload generation produced no payloads")

	// ErrChainsExhausted marks that no untried converter chain remains.
	ErrChainsExhausted = errors.New("converter chains exhausted")

	// ErrCampaignNotFound marks an unknown campaign ID.
	ErrCampaignNotFound = errors.New("campaign not found")
)

// ValidationErrorf wraps ErrValidation with a formatted message.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
