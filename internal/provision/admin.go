package provision

import (
	"context"

	"github.com/groupforge/groupforge/internal/platform"
	"go.uber.org/zap"
)

// minContactDigits is the shortest contact accepted after normalization;
// anything shorter is missing its country code.
const minContactDigits = 10

// addAdmin runs the admin-promotion sub-step for one group: normalize the
// contact, verify platform presence, add-then-promote, and on failure fall
// back to sending the invite link as a direct message. Every path returns a
// classified outcome; nothing here aborts the group.
func (r *Runner) addAdmin(ctx context.Context, conn platform.Conn, groupID, groupName, adminNumber, inviteLink string) AdminOutcome {
	number := NormalizeContact(adminNumber)
	if len(number) < minContactDigits {
		r.logger.Warn("admin contact too short, skipping",
			zap.String("group", groupName),
			zap.String("contact", adminNumber))
		return AdminOutcome{Status: AdminSkipped, Reason: "invalid number format"}
	}

	exists := true
	if present, err := r.callBool(ctx, func(c context.Context) (bool, error) {
		return conn.CheckPresence(c, number)
	}); err != nil {
		// The presence check is advisory; when it fails, try the add anyway.
		r.logger.Warn("presence check failed, assuming contact exists",
			zap.String("group", groupName), zap.Error(err))
	} else {
		exists = present
	}

	if !exists {
		return AdminOutcome{Status: AdminNotFound, Reason: "number not on the platform"}
	}

	addErr := r.callErr(ctx, func(c context.Context) error {
		return conn.AddParticipant(c, groupID, number)
	})
	if addErr == nil {
		// The platform needs the add to settle before it accepts a promote
		// for the same participant.
		if !r.pause(ctx, r.delays.Promote) {
			return AdminOutcome{Status: AdminError, Reason: "run aborted"}
		}
		if err := r.callErr(ctx, func(c context.Context) error {
			return conn.PromoteParticipant(c, groupID, number)
		}); err != nil {
			r.logger.Warn("promote failed after add",
				zap.String("group", groupName), zap.Error(err))
			return AdminOutcome{Status: AdminError, Reason: err.Error()}
		}
		r.logger.Info("admin added and promoted",
			zap.String("group", groupName), zap.String("contact", number))
		return AdminOutcome{Status: AdminSuccess, Reason: "added and promoted"}
	}

	r.logger.Warn("direct add failed, falling back to invite",
		zap.String("group", groupName), zap.Error(addErr))

	text := "You've been invited to join \"" + groupName + "\" as an admin.\n\nJoin here: " + inviteLink +
		"\n\nYou will be promoted to admin once you join."
	if err := r.callErr(ctx, func(c context.Context) error {
		return conn.SendDirectMessage(c, number, text)
	}); err != nil {
		r.logger.Warn("invite fallback failed",
			zap.String("group", groupName), zap.Error(err))
		return AdminOutcome{Status: AdminFailed, Reason: "could not add or invite"}
	}

	return AdminOutcome{Status: AdminInvited, Reason: "sent invite link"}
}
