// Package anchor submits newly committed digests to external timestamping
// services and stores the returned proofs. Submission is fire-and-forget:
// a slow or unreachable service never blocks a publish, and failures are
// logged rather than surfaced.
package anchor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chronicle-network/ledger-go/internal/core/digest"
	"github.com/chronicle-network/ledger-go/internal/store"

	"go.uber.org/zap"
)

// Stamper is one external timestamping service. Name keys the proofs it
// produces; URL accepts a POSTed hex digest and answers with proof bytes.
type Stamper struct {
	Name string
	URL  string
}

// maxProofBytes bounds a stamper response.
const maxProofBytes = 1 << 20

// Anchor drains a queue of digests and requests a timestamp proof from each
// configured stamper.
type Anchor struct {
	stampers []Stamper
	proofs   *store.ProofStore
	client   *http.Client
	queue    chan digest.Digest
}

// New creates an Anchor writing proofs through proofs. queueSize bounds the
// number of pending submissions; beyond it Submit drops (with a log) rather
// than block.
func New(stampers []Stamper, proofs *store.ProofStore, queueSize int) *Anchor {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Anchor{
		stampers: stampers,
		proofs:   proofs,
		client:   &http.Client{Timeout: 30 * time.Second},
		queue:    make(chan digest.Digest, queueSize),
	}
}

// Submit schedules a timestamp request for d. It never blocks; when the
// queue is full the submission is dropped and logged. Timestamping is an
// enhancement, not a publish precondition.
func (a *Anchor) Submit(d digest.Digest) {
	select {
	case a.queue <- d:
	default:
		zap.S().Warnw("timestamp queue full, dropping submission", "digest", d.String())
	}
}

// Run drains the queue until ctx is cancelled. Intended to be called as:
// go a.Run(ctx), or under an errgroup.
func (a *Anchor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-a.queue:
			a.stamp(ctx, d)
		}
	}
}

// stamp requests a proof from every configured stamper. Each stamper is
// independent: one failing does not stop the others.
func (a *Anchor) stamp(ctx context.Context, d digest.Digest) {
	for _, stamper := range a.stampers {
		proof, err := a.request(ctx, stamper, d)
		if err != nil {
			zap.S().Errorw("timestamp request failed",
				"stamper", stamper.Name, "digest", d.String(), "error", err)
			continue
		}
		if err := a.proofs.Put(d, stamper.Name, proof); err != nil {
			zap.S().Errorw("timestamp proof write failed",
				"stamper", stamper.Name, "digest", d.String(), "error", err)
			continue
		}
		zap.S().Infow("timestamp proof stored",
			"stamper", stamper.Name, "digest", d.String(), "bytes", len(proof))
	}
}

func (a *Anchor) request(ctx context.Context, stamper Stamper, d digest.Digest) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, stamper.URL,
		bytes.NewReader([]byte(d.String())))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("stamper responded %d", resp.StatusCode)
	}
	proof, err := io.ReadAll(io.LimitReader(resp.Body, maxProofBytes+1))
	if err != nil {
		return nil, err
	}
	if len(proof) == 0 {
		return nil, fmt.Errorf("stamper returned empty proof")
	}
	if len(proof) > maxProofBytes {
		return nil, fmt.Errorf("proof exceeds %d bytes", maxProofBytes)
	}
	return proof, nil
}
