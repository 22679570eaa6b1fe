package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/frame"
)

// DropDuplicateKeys keeps the first row of each (entity, time) key and
// returns the number of rows removed. The drop is logged per key group so a
// shrinking panel is never a mystery.
func DropDuplicateKeys(d *frame.Dataset) (*frame.Dataset, int) {
	out := frame.New(d.Name(), d.Schema())
	seen := make(map[[2]string]bool, d.Len())

	removed := 0
	for i := 0; i < d.Len(); i++ {
		key := [2]string{d.Entity(i).Key(), d.Time(i).Key()}
		if seen[key] {
			removed++
			continue
		}
		seen[key] = true
		// Row length already matched the schema on the way in.
		_ = out.Append(d.Row(i))
	}

	if removed > 0 {
		zap.L().Warn("duplicate keys dropped, keeping first row per key",
			zap.String("dataset", d.Name()),
			zap.Int("removed", removed),
		)
	}
	return out, removed
}
