// Package swarm implements the in-process coordination bus that lets a
// primary orchestrator delegate work to a pool of specialized worker
// agents.
//
// The bus runs a time-boxed sealed-bid auction for each delegated task:
// the orchestrator broadcasts a TaskAnnouncement, workers submit Bids
// before the deadline, and the highest-scoring bid wins the Assignment.
// Workers report Results and Alerts back through the bus, where they are
// queued for asynchronous pickup.
//
// Components:
//
//   - Channel: broadcast fan-out of tagged swarm messages to subscribers
//   - Registry: worker registration, heartbeats, and liveness
//   - Ledger: active task map plus pending result/alert queues
//   - Auctioneer: opens, collects bids for, and closes auctions
//   - Delegator: the orchestrator-facing facade that runs the whole
//     announce → bid → assign → await-result cycle as one call
//   - Sweeper: periodic pruning of workers with stale heartbeats
//
// Everything is single-process and in-memory. Delegation failure is
// never fatal: every failure mode (no bids, worker failure, timeout)
// surfaces as an absent result, and the caller falls back to performing
// the task itself.
package swarm
