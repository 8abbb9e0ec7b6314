package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

func loanNode() *snowflake.Node {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = n
			}
		}
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			return
		}
		node = n
	})
	return node
}

// NewLoanReference generates a sortable, human-quotable reference code for a
// loan. Snowflake IDs keep references roughly time-ordered; if node setup
// fails a KSUID is used so a unique reference is still returned.
func NewLoanReference() string {
	if n := loanNode(); n != nil {
		return n.Generate().String()
	}
	return ksuid.New().String()
}

// NewRequestID generates a globally unique ID for request tracing.
func NewRequestID() string {
	return ksuid.New().String()
}
