package domain

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrMandatorySettingMissing is returned when a configuration value
	// required at the point of use is absent. Fail fast, do not retry.
	ErrMandatorySettingMissing = errors.New("mandatory setting missing")

	// ErrRelationTargetMissing signals a data-integrity violation: a relation
	// matched the support-management service filter but its target errand
	// does not exist locally.
	ErrRelationTargetMissing = errors.New("relation target errand not found locally")
)
