package team

import "errors"

var (
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrMemberNotFound      = errors.New("team member not found")
	ErrInvalidTransition   = errors.New("invalid invitation transition")
	ErrCannotInviteSelf    = errors.New("cannot invite yourself")
	ErrDuplicateInvitation = errors.New("an open invitation already exists for this email")
	ErrAlreadyMember       = errors.New("user is already a team member")
	ErrInvitationExpired   = errors.New("invitation has expired")
	ErrCancelPremiumFirst  = errors.New("cancel your premium subscription before joining a team")
	ErrInvalidEmail        = errors.New("invalid email")
)
