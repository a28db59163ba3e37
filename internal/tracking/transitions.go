package tracking

import "github.com/jmerrifield20/SupplyChainLedger/internal/ledger"

// Transitions lists, for each latest status of a product, the statuses that
// may follow it. Cancelled is terminal.
var Transitions = map[ledger.Status][]ledger.Status{
	ledger.StatusCreated: {
		ledger.StatusPickedUp, ledger.StatusInTransit, ledger.StatusCancelled,
	},
	ledger.StatusPickedUp: {
		ledger.StatusInTransit, ledger.StatusReceivedAtHub, ledger.StatusReturned, ledger.StatusCancelled,
	},
	ledger.StatusInTransit: {
		ledger.StatusInTransit, ledger.StatusReceivedAtHub, ledger.StatusDeliveredToRetailer,
		ledger.StatusReturned, ledger.StatusCancelled,
	},
	ledger.StatusReceivedAtHub: {
		ledger.StatusPickedUp, ledger.StatusInTransit, ledger.StatusDeliveredToRetailer,
		ledger.StatusReturned, ledger.StatusCancelled,
	},
	ledger.StatusDeliveredToRetailer: {
		ledger.StatusPending, ledger.StatusDelivered, ledger.StatusReturned, ledger.StatusCancelled,
	},
	ledger.StatusPending: {
		ledger.StatusDelivered, ledger.StatusReturned, ledger.StatusCancelled,
	},
	ledger.StatusDelivered: {
		ledger.StatusReturned,
	},
	ledger.StatusReturned: {
		ledger.StatusPickedUp, ledger.StatusInTransit,
	},
}

// CanTransition reports whether to may directly follow from.
func CanTransition(from, to ledger.Status) bool {
	for _, next := range Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
