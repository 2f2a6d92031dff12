// Package resource shares limits between concurrent snapshot transfers.
//
// A Controller hands out transfer slots, reserves memory for chunks on
// their way between a mapped file and a blob store, and meters bytes
// against a token bucket:
//
//	rc := resource.NewController(resource.Config{
//	    ChunkMemory:    64 << 20,
//	    MaxTransfers:   2,
//	    BytesPerSecond: 100 << 20,
//	})
//
//	end, err := rc.BeginTransfer(ctx)
//	if err != nil {
//	    return err
//	}
//	defer end()
//
//	w := rc.Writer(ctx, blob)
//
// A nil *Controller is valid and limits nothing.
package resource
