// Package id provides the snowflake node used for primary keys.
package id

import (
	"hash/fnv"
	"os"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// NewNode derives the node number from the hostname so replicas generate
// disjoint ids without coordination.
func NewNode() (*snowflake.Node, error) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "perkway"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return snowflake.NewNode(int64(h.Sum32() % 1024))
}

var Module = fx.Provide(NewNode)
