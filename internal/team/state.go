package team

import "github.com/hugh/dealdesk/internal/database/models"

var transitions = map[models.InvitationStatus][]models.InvitationStatus{
	models.InvitationPending: {
		models.InvitationAccepted,
		models.InvitationDeclined,
		models.InvitationExpired,
		models.InvitationRescinded,
		models.InvitationPendingPremiumCancel,
	},
	models.InvitationPendingSignup: {
		models.InvitationPending,
		models.InvitationExpired,
		models.InvitationRescinded,
	},
	models.InvitationPendingPremiumCancel: {
		models.InvitationAccepted,
		models.InvitationDeclined,
		models.InvitationExpired,
		models.InvitationRescinded,
	},
}

func CanTransition(from, to models.InvitationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status models.InvitationStatus) bool {
	return len(transitions[status]) == 0
}

// releasesSeat reports whether entering status hands the reserved seat back.
func releasesSeat(status models.InvitationStatus) bool {
	switch status {
	case models.InvitationDeclined, models.InvitationExpired, models.InvitationRescinded:
		return true
	}
	return false
}
