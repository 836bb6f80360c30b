// Package settlement broadcasts signed transactions and waits for them to
// reach a terminal on-chain state.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitwit/x402-checkout/clients"
	"github.com/vitwit/x402-checkout/logger"
	"github.com/vitwit/x402-checkout/metrics"
	"github.com/vitwit/x402-checkout/types"
	"github.com/vitwit/x402-checkout/utils"
)

// Service submits transactions across the networks it has clients for.
type Service struct {
	clients             map[types.Network]clients.Client
	confirmationTimeout time.Duration
	pollInterval        time.Duration
	logger              logger.Logger
	metrics             metrics.Recorder
}

// NewService creates a settlement service. Zero durations fall back to the
// configuration defaults.
func NewService(confirmationTimeout, pollInterval time.Duration, log logger.Logger, rec metrics.Recorder) *Service {
	if confirmationTimeout <= 0 {
		confirmationTimeout = types.DefaultConfirmationTimeout
	}
	if pollInterval <= 0 {
		pollInterval = types.DefaultPollInterval
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Service{
		clients:             make(map[types.Network]clients.Client),
		confirmationTimeout: confirmationTimeout,
		pollInterval:        pollInterval,
		logger:              log,
		metrics:             rec,
	}
}

// AddClient registers the client for its network, replacing any previous one.
func (s *Service) AddClient(client clients.Client) error {
	network := client.Network()
	if network.Family() == "" {
		return types.PreconditionError(types.ErrUnsupportedNetwork,
			fmt.Sprintf("unsupported network: %s", network))
	}
	s.clients[network] = client
	return nil
}

// Submit broadcasts tx once and waits for it to confirm. On a confirmation
// timeout or chain failure the returned result still carries the signature.
func (s *Service) Submit(ctx context.Context, tx *types.SignedTransaction, cp types.Checkpoint) (*types.SubmissionResult, error) {
	sig, err := s.Broadcast(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.Confirm(ctx, tx.Network, sig, cp)
}

// Broadcast sends tx exactly once.
func (s *Service) Broadcast(ctx context.Context, tx *types.SignedTransaction) (string, error) {
	client, err := s.client(tx.Network)
	if err != nil {
		return "", err
	}

	start := time.Now()
	sig, err := client.Broadcast(ctx, tx)
	metrics.ObserveSince(s.metrics, metrics.StepBroadcast, start, map[string]string{"network": tx.Network.String()})
	if err != nil {
		reason := clients.ClassifyBroadcastError(err)
		s.logger.Warn("broadcast_rejected", map[string]any{
			"network": tx.Network.String(),
			"reason":  reason,
			"error":   err,
		})
		perr := types.SubmissionError(types.ErrBroadcastRejected,
			fmt.Sprintf("transaction rejected by the network: %s", reason), err)
		return "", perr
	}

	if err := utils.ValidateSignature(tx.Network, sig); err != nil {
		s.logger.Error("broadcast_malformed_signature", map[string]any{
			"network":   tx.Network.String(),
			"signature": sig,
			"error":     err,
		})
		perr := types.SubmissionError(types.ErrBroadcastRejected,
			"network returned an unusable transaction signature", err)
		perr.Signature = sig
		return "", perr
	}

	s.logger.Info("transaction_broadcast", map[string]any{
		"network":   tx.Network.String(),
		"signature": sig,
	})
	return sig, nil
}

// Confirm polls the status of signature until it is confirmed, failed, or
// dropped. Dropped covers both an expired checkpoint and the confirmation
// timeout; both return confirmation_timeout since the outcome is unknown.
func (s *Service) Confirm(ctx context.Context, network types.Network, signature string, cp types.Checkpoint) (*types.SubmissionResult, error) {
	client, err := s.client(network)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.confirmationTimeout)
	defer cancel()

	labels := map[string]string{"network": network.String()}
	start := time.Now()
	defer metrics.ObserveSince(s.metrics, metrics.StepConfirm, start, labels)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	result := &types.SubmissionResult{Signature: signature}
	for {
		st, err := client.Status(ctx, signature)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				s.metrics.IncCounter(metrics.EventStatusQueryFailed, labels)
				s.logger.Warn("status_query_failed", map[string]any{
					"signature": signature,
					"error":     err,
				})
			}

		case st.State == types.TxConfirmed:
			result.FinalStatus = types.StatusConfirmed
			result.Slot = st.Slot
			s.logger.Info("transaction_confirmed", map[string]any{
				"signature": signature,
				"slot":      st.Slot,
			})
			return result, nil

		case st.State == types.TxFailed:
			result.FinalStatus = types.StatusFailed
			result.Slot = st.Slot
			result.Reason = st.Reason
			perr := types.SubmissionError(types.ErrChainExecutionFailed,
				fmt.Sprintf("transaction failed on chain: %s", st.Reason), nil)
			perr.Signature = signature
			return result, perr

		case st.State == types.TxNotFound && cp.LastValidHeight > 0 && st.BlockHeight > cp.LastValidHeight:
			return s.dropped(result, clients.ReasonBlockHeightExceeded,
				fmt.Sprintf("checkpoint expired at height %d before the transaction was included", cp.LastValidHeight))
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return s.dropped(result, clients.ReasonConfirmationTimeout,
					fmt.Sprintf("transaction not confirmed within %s", s.confirmationTimeout))
			}
			return s.dropped(result, clients.ReasonConfirmationTimeout, "confirmation polling stopped before a final status")
		case <-ticker.C:
		}
	}
}

func (s *Service) dropped(result *types.SubmissionResult, reason, msg string) (*types.SubmissionResult, error) {
	result.FinalStatus = types.StatusDropped
	result.Reason = reason
	s.logger.Warn("confirmation_timeout", map[string]any{
		"signature": result.Signature,
		"reason":    reason,
	})
	perr := types.SubmissionError(types.ErrConfirmationTimeout,
		msg+"; check the signature on an explorer before paying again", nil)
	perr.Signature = result.Signature
	return result, perr
}

func (s *Service) client(network types.Network) (clients.Client, error) {
	client, ok := s.clients[network]
	if !ok {
		return nil, types.PreconditionError(types.ErrUnsupportedNetwork,
			fmt.Sprintf("no client configured for network %s", network))
	}
	return client, nil
}

// IsNetworkSupported checks if a network has a client
func (s *Service) IsNetworkSupported(network types.Network) bool {
	_, ok := s.clients[network]
	return ok
}

// GetSupportedNetworks returns all networks that have configured clients
func (s *Service) GetSupportedNetworks() []types.Network {
	networks := make([]types.Network, 0, len(s.clients))
	for network := range s.clients {
		networks = append(networks, network)
	}
	return networks
}

// Close closes all client connections
func (s *Service) Close() {
	for _, client := range s.clients {
		client.Close()
	}
}
