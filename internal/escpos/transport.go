package escpos

import "context"

// Transport delivers a serialized command buffer to a printer destination
// (USB path, network address, or a local bridge). Implementations live with
// the terminal integration, not here.
type Transport interface {
	Print(ctx context.Context, destination string, payload []byte) error
}
