package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stormzy/iroha"
	"github.com/stormzy/iroha/config"
	"github.com/stormzy/iroha/consensus"
	"github.com/stormzy/iroha/network"
	"github.com/stormzy/iroha/ordering"
	"github.com/stormzy/iroha/p2p"
	"github.com/stormzy/iroha/types"
)

const configName = "ironode"

var defaultConfig = `# ironode configuration
transaction_limit: 100
number_of_proposals: 16
initial_height: 1
initial_reject: 1
request_timeout: 5s
listen_address: /ip4/127.0.0.1/tcp/10101
# peers:
#   - id: 12D3KooW...
#     address: /ip4/10.0.0.2/tcp/10101
`

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ironode",
		Short: "On-demand ordering node",
	}
	cmd.PersistentFlags().String("home", ".", "directory containing the config file")
	cmd.AddCommand(initCmd(), startCmd())
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, _ := cmd.Flags().GetString("home")
			path := home + "/" + configName + ".yaml"
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			return os.WriteFile(path, []byte(defaultConfig), 0o644)
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the ordering node",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, _ := cmd.Flags().GetString("home")
			metricsAddr, _ := cmd.Flags().GetString("metrics")
			blockInterval, _ := cmd.Flags().GetDuration("block-interval")

			cfg, err := config.Load(home, configName)
			if err != nil {
				return err
			}
			return start(cfg, metricsAddr, blockInterval)
		},
	}
	cmd.Flags().String("metrics", "", "address to serve prometheus metrics on (empty disables)")
	cmd.Flags().Duration("block-interval", 3*time.Second, "interval of the development round driver")
	return cmd
}

func start(cfg *config.Config, metricsAddr string, blockInterval time.Duration) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	host, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddress))
	if err != nil {
		return fmt.Errorf("creating libp2p host: %w", err)
	}
	defer host.Close()
	self := types.Peer{ID: host.ID().String(), Address: cfg.ListenAddress}
	logger.Info().Stringer("peer", self).Msg("host up")

	peers, err := dialablePeers(cfg, host)
	if err != nil {
		return err
	}

	// with no peers configured the node orders for itself over the loopback
	var factory ordering.Factory
	initialPeers := iroha.LocalPeerSet(self)
	orderPeers := []types.Peer{self}
	if len(peers) > 0 {
		factory = p2p.NewSessionFactory(host)
		initialPeers = assignSlots(peers)
		orderPeers = peers
	}

	registry := prometheus.NewRegistry()
	// the hash agreement backend is pluggable; the bundled gate agrees with
	// itself, which is only meaningful for development networks
	hashGate := consensus.NewSoloGate()
	defer hashGate.Close()

	pipeline, err := iroha.New(cfg, iroha.Options{
		HashGate:     hashGate,
		Orderer:      consensus.NewHashSeededOrderer(orderPeers),
		Factory:      factory,
		InitialPeers: initialPeers,
		Logger:       &logger,
		Registry:     registry,
	})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	server := p2p.NewServer(host, pipeline.Service,
		p2p.WithServerLogger(logger.With().Str("component", "p2p_server").Logger()))
	defer server.Close()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	// development round driver: emulates the storage pipeline by turning
	// each committed proposal into a block event on the next tick and
	// filling the gaps with empty events
	var committedHeight atomic.Uint64
	cancel := pipeline.Gate.Proposals().Subscribe(func(proposal *types.Proposal) {
		committedHeight.Store(proposal.Round.Height)
		logger.Info().Stringer("proposal", proposal).Msg("committed")
	})
	defer cancel()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(blockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if height := committedHeight.Swap(0); height > 0 {
				pipeline.Events.Publish(ordering.NewBlockEvent(height + 1))
			} else {
				pipeline.Events.Publish(ordering.NewEmptyEvent())
			}
		case sig := <-done:
			logger.Info().Stringer("signal", sig).Msg("shutting down")
			return nil
		}
	}
}

// dialablePeers validates the configured peers and primes the peerstore with
// their addresses.
func dialablePeers(cfg *config.Config, host interface {
	Peerstore() peerstore.Peerstore
}) ([]types.Peer, error) {
	peers := make([]types.Peer, 0, len(cfg.Peers))
	for _, pc := range cfg.Peers {
		id, err := peer.Decode(pc.ID)
		if err != nil {
			return nil, fmt.Errorf("peer %q: %w", pc.ID, err)
		}
		addr, err := ma.NewMultiaddr(pc.Address)
		if err != nil {
			return nil, fmt.Errorf("peer %q address: %w", pc.ID, err)
		}
		host.Peerstore().AddAddrs(id, []ma.Multiaddr{addr}, peerstore.PermanentAddrTTL)
		peers = append(peers, pc.Peer())
	}
	return peers, nil
}

// assignSlots distributes the configured peers over the ordering slots,
// cycling when there are fewer peers than slots.
func assignSlots(peers []types.Peer) network.PeerSet {
	at := func(i int) types.Peer { return peers[i%len(peers)] }
	return network.PeerSet{
		Issuer:                     at(0),
		PreviousConsumer:           at(1),
		CurrentRoundRejectConsumer: at(2),
		NextRoundRejectConsumer:    at(3),
		NextRoundCommitConsumer:    at(4),
	}
}
