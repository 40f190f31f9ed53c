// Package scan orchestrates raster scans across a grid of stage positions.
//
// A Scanner drives a stage.Controller through a snake-ordered plan: even rows
// run from the low to the high end of the X range, odd rows run back, so
// consecutive points are always neighbors. At every point the scanner moves
// the stage with bounded retries, falls back to a recovery procedure when the
// retries are exhausted, waits for the stage to stabilize and hands the
// actual position to a data callback.
//
// Progress survives a failed or cancelled scan, so a later call to
// PerformScan with WithResume visits only the points that are still missing.
//
//	scanner, err := scan.New(ctrl, scan.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer scanner.Close()
//
//	if err := scanner.InitializeScan(ctx, scan.Grid{XSteps: 5, YSteps: 5}); err != nil {
//		return err
//	}
//	err = scanner.PerformScan(ctx, func(ctx context.Context, s scan.Sample) error {
//		return acquire(ctx, s.X, s.Y, s.Col, s.Row)
//	})
//
// A Scanner is driven by a single caller and is not safe for concurrent use.
package scan
