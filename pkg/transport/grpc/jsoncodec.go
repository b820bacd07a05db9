package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec carries the JSON documents used by the node and monitor services
// so that neither side needs protobuf codegen.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v interface{}) error { return json.Unmarshal(b, v) }
func (jsonCodec) Name() string                            { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// empty is the request of every unary call.
type empty struct{}

// blob wraps a JSON document produced by a transport.SnapshotFunc.
type blob struct {
	Data []byte `json:"data"`
}

const (
	nodeService    = "clusterview.v1.Node"
	monitorService = "clusterview.v1.Monitor"

	methodGetClusterState = "/" + nodeService + "/GetClusterState"
	methodSnapshot        = "/" + monitorService + "/Snapshot"
	methodSummary         = "/" + monitorService + "/Summary"
	methodConvergence     = "/" + monitorService + "/Convergence"
	methodWatch           = "/" + monitorService + "/Watch"
)
