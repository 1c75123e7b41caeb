package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/groupforge/groupforge/internal/config"
	"github.com/groupforge/groupforge/internal/metrics"
	"github.com/groupforge/groupforge/internal/platform"
	"go.uber.org/zap"
)

// ConnProvider re-fetches the tenant's live connection handle. It returns nil
// whenever the tenant is not connected; the pipeline checks it before every
// group so a lost connection aborts the remainder of the run instead of
// retrying into the void.
type ConnProvider func() platform.Conn

// Runner executes provisioning jobs. Groups are created strictly one at a
// time per run; the inter-group delay is the single most important throttle
// in the system and exists purely to stay under the platform's automated
// behaviour detection.
type Runner struct {
	delays      config.DelayConfig
	callTimeout time.Duration
	artifacts   *ArtifactWriter
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewRunner creates a pipeline runner.
func NewRunner(
	delays config.DelayConfig,
	callTimeout time.Duration,
	artifacts *ArtifactWriter,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Runner {
	return &Runner{
		delays:      delays,
		callTimeout: callTimeout,
		artifacts:   artifacts,
		logger:      logger,
		metrics:     m,
	}
}

// Run executes the job and returns the ordered progress stream. The channel
// is closed after exactly one terminal complete event. Cancelling the context
// stops the run at the next suspension point; bookkeeping still finishes.
func (r *Runner) Run(ctx context.Context, job Job, conns ConnProvider) <-chan Event {
	ch := make(chan Event, 8)
	go r.run(ctx, job, conns, ch)
	return ch
}

func (r *Runner) run(ctx context.Context, job Job, conns ConnProvider, ch chan<- Event) {
	defer close(ch)

	started := time.Now()
	r.metrics.RunStarted()
	defer func() { r.metrics.RunFinished(time.Since(started)) }()

	emit := func(e Event) {
		select {
		case ch <- e:
		case <-ctx.Done():
		}
	}

	r.logger.Info("provisioning run started",
		zap.String("tenant_id", job.TenantID),
		zap.String("base_name", job.BaseName),
		zap.Int("start", job.StartIndex),
		zap.Int("count", job.Count))

	emit(Event{
		Type:        EventStart,
		TotalGroups: job.Count,
		StartNumber: job.StartIndex,
		BaseName:    job.BaseName,
		Message:     fmt.Sprintf("Starting to create %d groups from %q", job.Count, job.GroupName(0)),
	})

	var results []GroupResult
	var failed []string

	for i := 0; i < job.Count; i++ {
		groupName := job.GroupName(i)

		// The handle can vanish mid-job on any disconnect; abort the rest of
		// the run with an explicit event rather than silently skipping.
		conn := conns()
		if conn == nil {
			r.logger.Warn("connection lost mid-run, aborting remaining groups",
				zap.String("tenant_id", job.TenantID),
				zap.Int("current", i+1), zap.Int("total", job.Count))
			emit(Event{
				Type:    EventError,
				Current: i + 1,
				Total:   job.Count,
				Message: "connection lost, please reconnect and try again",
			})
			break
		}

		result, warnings, failReason := r.provisionGroup(ctx, conn, conns, job, i, groupName, emit)
		if failReason == "" {
			results = append(results, result)
			r.metrics.RecordGroup("success")
			emit(Event{
				Type:              EventLink,
				GroupName:         groupName,
				Link:              result.Link,
				GroupID:           result.GroupID,
				Current:           i + 1,
				Total:             job.Count,
				AddMembersWarning: len(warnings) > 0,
				Warnings:          warnings,
				AdminStatus:       result.AdminOutcome,
			})
		} else {
			failed = append(failed, groupName)
			r.metrics.RecordGroup("failed")
			emit(Event{
				Type:      EventFailed,
				GroupName: groupName,
				Current:   i + 1,
				Total:     job.Count,
				Reason:    failReason,
			})
		}

		if i < job.Count-1 {
			emit(Event{
				Type:         EventWait,
				Current:      i + 1,
				Total:        job.Count,
				DelaySeconds: r.delays.InterGroup.Seconds(),
				Message:      "waiting before creating next group",
			})
			if !r.pause(ctx, r.delays.InterGroup) {
				break
			}
		}
	}

	if len(results) > 0 {
		if _, err := r.artifacts.Write(job.BaseName, results); err != nil {
			// Losing the artifact file loses nothing the stream did not
			// already deliver.
			r.logger.Error("failed to persist links artifact", zap.Error(err))
		}
	}

	emit(Event{
		Type:             EventComplete,
		Success:          true,
		TotalRequested:   job.Count,
		SuccessfulGroups: len(results),
		FailedGroups:     len(failed),
		Failed:           failed,
		BaseName:         job.BaseName,
		StartNumber:      job.StartIndex,
		Message:          fmt.Sprintf("Group creation completed: %d/%d successful", len(results), job.Count),
	})

	r.logger.Info("provisioning run finished",
		zap.String("tenant_id", job.TenantID),
		zap.Int("successful", len(results)),
		zap.Int("failed", len(failed)))
}

// provisionGroup runs the create-configure-publish cycle for one group. A
// non-empty failReason means the group failed; failures are always local to
// the group and never abort its siblings.
func (r *Runner) provisionGroup(
	ctx context.Context,
	conn platform.Conn,
	conns ConnProvider,
	job Job,
	i int,
	groupName string,
	emit func(Event),
) (result GroupResult, warnings []string, failReason string) {
	r.logger.Info("creating group",
		zap.String("group", groupName),
		zap.Int("current", i+1), zap.Int("total", job.Count))

	groupID, err := r.call(ctx, func(c context.Context) (string, error) {
		return conn.CreateGroup(c, groupName)
	})
	if err != nil {
		r.logger.Error("group creation failed",
			zap.String("group", groupName), zap.Error(err))
		return GroupResult{GroupName: groupName}, nil, err.Error()
	}

	r.pause(ctx, r.delays.Settle)

	warnings = r.configurePermissions(ctx, conn, groupID, groupName)

	if job.Description != "" {
		r.setDescription(ctx, conn, groupID, groupName, job.Description, emit)
		r.pause(ctx, r.delays.PostStep)
	}

	if job.ImageData != "" {
		r.setPicture(ctx, conn, groupID, groupName, job, emit)
		r.pause(ctx, r.delays.PostStep)
	}

	r.pause(ctx, r.delays.Link)

	link, err := r.call(ctx, func(c context.Context) (string, error) {
		return conn.InviteLink(c, groupID)
	})
	if err != nil || link == "" {
		r.logger.Error("failed to obtain invite link",
			zap.String("group", groupName), zap.Error(err))
		return GroupResult{
			GroupName: groupName,
			GroupID:   groupID,
			Warnings:  warnings,
		}, warnings, "could not obtain invite link"
	}

	result = GroupResult{
		GroupName: groupName,
		GroupID:   groupID,
		Link:      link,
		Warnings:  warnings,
	}

	if job.AdminNumber != "" {
		emit(Event{
			Type:        EventAdmin,
			Action:      ActionAdding,
			GroupName:   groupName,
			AdminNumber: job.AdminNumber,
			Message:     fmt.Sprintf("Adding admin %s to %s...", job.AdminNumber, groupName),
		})

		var outcome AdminOutcome
		// Re-fetch the handle: a disconnect since the group was created must
		// skip the admin step, not fail the group.
		if adminConn := conns(); adminConn == nil {
			outcome = AdminOutcome{Status: AdminSkipped, Reason: "connection lost"}
		} else {
			outcome = r.addAdmin(ctx, adminConn, groupID, groupName, job.AdminNumber, link)
		}
		result.AdminOutcome = &outcome

		emit(Event{
			Type:        EventAdmin,
			Action:      ActionResult,
			GroupName:   groupName,
			AdminNumber: job.AdminNumber,
			AdminStatus: &outcome,
			Message:     outcome.Message(job.AdminNumber, groupName),
		})
	}

	return result, warnings, ""
}

// configurePermissions applies the open-messaging and open-editing toggles.
// Failures are warnings, never an abort.
func (r *Runner) configurePermissions(ctx context.Context, conn platform.Conn, groupID, groupName string) []string {
	var warnings []string

	if err := r.callErr(ctx, func(c context.Context) error {
		return conn.SetPermission(c, groupID, platform.SettingUnlocked)
	}); err != nil {
		r.logger.Warn("failed to unlock group info editing",
			zap.String("group", groupName), zap.Error(err))
		warnings = append(warnings, "could not enable info editing for all members")
	}

	r.pause(ctx, r.delays.Setting)

	if err := r.callErr(ctx, func(c context.Context) error {
		return conn.SetPermission(c, groupID, platform.SettingOpenMessaging)
	}); err != nil {
		r.logger.Warn("failed to open messaging",
			zap.String("group", groupName), zap.Error(err))
		warnings = append(warnings, "could not enable messaging for all members")
	}

	r.pause(ctx, r.delays.Setting)

	return warnings
}

// setDescription sets the group description with setting/success/failed
// progress events.
func (r *Runner) setDescription(ctx context.Context, conn platform.Conn, groupID, groupName, description string, emit func(Event)) {
	emit(Event{
		Type:      EventDescription,
		Action:    ActionSetting,
		GroupName: groupName,
		Message:   fmt.Sprintf("Setting description for %s...", groupName),
	})

	if err := r.callErr(ctx, func(c context.Context) error {
		return conn.SetDescription(c, groupID, description)
	}); err != nil {
		r.logger.Warn("failed to set description",
			zap.String("group", groupName), zap.Error(err))
		emit(Event{
			Type:      EventDescription,
			Action:    ActionFailed,
			GroupName: groupName,
			Error:     err.Error(),
			Message:   fmt.Sprintf("Failed to set description for %s: %s", groupName, err.Error()),
		})
		return
	}

	emit(Event{
		Type:      EventDescription,
		Action:    ActionSuccess,
		GroupName: groupName,
		Message:   fmt.Sprintf("Description set for %s", groupName),
	})
}

// setPicture decodes the embedded image payload and sets it as the group
// picture, with setting/success/failed progress events.
func (r *Runner) setPicture(ctx context.Context, conn platform.Conn, groupID, groupName string, job Job, emit func(Event)) {
	emit(Event{
		Type:      EventImage,
		Action:    ActionSetting,
		GroupName: groupName,
		Message:   fmt.Sprintf("Setting picture for %s...", groupName),
	})

	img, err := DecodeImage(job.ImageData)
	if err == nil {
		err = r.callErr(ctx, func(c context.Context) error {
			return conn.SetPicture(c, groupID, img)
		})
	}
	if err != nil {
		r.logger.Warn("failed to set picture",
			zap.String("group", groupName), zap.Error(err))
		emit(Event{
			Type:      EventImage,
			Action:    ActionFailed,
			GroupName: groupName,
			Error:     err.Error(),
			Message:   fmt.Sprintf("Failed to set picture for %s: %s", groupName, err.Error()),
		})
		return
	}

	emit(Event{
		Type:      EventImage,
		Action:    ActionSuccess,
		GroupName: groupName,
		Message:   fmt.Sprintf("Picture set for %s", groupName),
	})
}

// pause waits for d, returning false when the context is cancelled first.
// Every fixed delay in the pipeline is a suspension point.
func (r *Runner) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// call bounds a platform call returning a value with the configured timeout.
func (r *Runner) call(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	c, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return fn(c)
}

// callBool bounds a boolean platform call with the configured timeout.
func (r *Runner) callBool(ctx context.Context, fn func(context.Context) (bool, error)) (bool, error) {
	c, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return fn(c)
}

// callErr bounds an error-only platform call with the configured timeout.
func (r *Runner) callErr(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return fn(c)
}
