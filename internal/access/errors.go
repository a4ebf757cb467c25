package access

import "errors"

var (
	ErrUnknownTier       = errors.New("unknown tier")
	ErrPromotionNoOp     = errors.New("promotion would not increase privilege")
	ErrTargetNotBelow    = errors.New("target is not below actor tier")
	ErrTierExceedsActor  = errors.New("requested tier exceeds actor authority")
	ErrAdminCreationOnly = errors.New("only the owner may create admins")
)
