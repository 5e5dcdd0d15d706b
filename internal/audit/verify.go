package audit

import (
	"fmt"

	"github.com/browsegate/browsegate/pkg/types"
)

// VerifyChain recomputes every chain hash in order and compares it to what
// was stored. After a rotation the chain is only verifiable for the retained
// suffix; verification restarts from the first record's recorded predecessor.
func VerifyChain(records []types.AuditSession) error {
	if len(records) == 0 {
		return nil
	}
	prev := records[0].PrevChainHash
	for i, rec := range records {
		if rec.PrevChainHash != prev {
			return fmt.Errorf("record %d (session %s): prev chain hash mismatch", i, rec.SessionID)
		}
		want, err := ChainHash(prev, rec)
		if err != nil {
			return fmt.Errorf("record %d (session %s): %w", i, rec.SessionID, err)
		}
		if rec.ChainHash != want {
			return fmt.Errorf("record %d (session %s): chain hash mismatch, entries were altered", i, rec.SessionID)
		}
		prev = rec.ChainHash
	}
	return nil
}
