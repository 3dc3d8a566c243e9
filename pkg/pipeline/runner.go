package pipeline

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/medscribe/medscribe/pkg/audio"
	"github.com/medscribe/medscribe/pkg/notify"
	"github.com/medscribe/medscribe/pkg/store"
)

// runJob drives one admitted job through the pipeline:
//
//	acquire admission slot -> mark record processing -> normalize audio ->
//	acquire engine slot -> transcribe -> persist -> notify -> cleanup.
//
// Errors past admission never propagate to the submitter; they land on the
// job record as status=failed and, when someone is listening, on the
// notification channel. Temporary artifacts are removed on every exit path.
func (d *Dispatcher) runJob(ctx context.Context, j job) {
	start := time.Now()

	// The normalized target is derived, not tracked: ffmpeg runs with -y and
	// can leave a partial file behind when conversion fails, so the derived
	// path is removed whether or not Normalize returned it.
	defer func() {
		d.removeQuietly(j.rawPath)
		if target := audio.NormalizedPath(j.rawPath); target != j.rawPath {
			d.removeQuietly(target)
		}
	}()

	// Serialize same-encounter submissions before consuming an admission
	// slot: a duplicate waiting here costs a worker, not pipeline capacity.
	unlock := d.locks.lock(j.encounterID)
	defer unlock()

	if err := d.gate.Acquire(ctx); err != nil {
		d.logger.Warn("job abandoned before admission", "encounterID", j.encounterID, "error", err)
		d.fail(j.encounterID, err)
		return
	}
	defer d.gate.Release()

	recordID, err := d.store.EnsureProcessing(j.encounterID)
	if err != nil {
		d.logger.Error("failed to mark job processing", "encounterID", j.encounterID, "error", err)
		d.fail(j.encounterID, err)
		return
	}

	wavPath, err := d.normalizer.Normalize(ctx, j.rawPath)
	if err != nil {
		d.logger.Error("audio normalization failed", "encounterID", j.encounterID, "error", err)
		d.fail(j.encounterID, err)
		return
	}

	seconds := d.normalizer.Duration(ctx, wavPath)

	slot := d.pool.Next()
	slot.Lock()
	slot.Engine().Reset()
	transcript, err := slot.Engine().Transcribe(ctx, wavPath)
	slot.Unlock()
	if err != nil {
		d.logger.Error("transcription failed", "encounterID", j.encounterID, "error", err)
		d.fail(j.encounterID, err)
		return
	}

	if err := d.store.MarkCompleted(recordID, transcript); err != nil {
		d.logger.Error("failed to persist transcript", "encounterID", j.encounterID, "error", err)
		d.fail(j.encounterID, err)
		return
	}

	d.notifier.Notify(j.encounterID, notify.Event{Status: store.StatusCompleted, Content: transcript})

	d.logger.Info("transcription completed",
		"encounterID", j.encounterID,
		"audio", (time.Duration(seconds * float64(time.Second))).Round(time.Millisecond).String(),
		"took", humanize.RelTime(start, time.Now(), "", ""),
		"chars", len(transcript))
}

// fail records a terminal failure and notifies any subscriber. Persistence
// errors here are logged, not returned; there is no one left to return them
// to.
func (d *Dispatcher) fail(encounterID int64, cause error) {
	if err := d.store.MarkFailed(encounterID); err != nil {
		d.logger.Error("failed to mark job record failed", "encounterID", encounterID, "error", err, "cause", cause)
	}
	d.notifier.Notify(encounterID, notify.Event{Status: store.StatusFailed})
}
