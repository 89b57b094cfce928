package sandbox

import "github.com/GriffinCanCode/deskglyph/internal/protocol"

// GridMargin is the screen-edge margin of the fallback grid.
const GridMargin = 20

// GridPosition places icon_index on a row-major grid filling the screen
// width. It never fails: degenerate cells collapse to a single column.
func GridPosition(in protocol.PositionInput) protocol.Position {
	columns := uint64(1)
	if in.CellWidth > 0 && uint64(in.ScreenWidth) > 2*GridMargin {
		columns = (uint64(in.ScreenWidth) - 2*GridMargin) / uint64(in.CellWidth)
	}
	if columns == 0 {
		columns = 1
	}

	index := uint64(in.IconIndex)
	col := index % columns
	row := index / columns

	return protocol.Position{
		X: protocol.Number(GridMargin + col*uint64(in.CellWidth)),
		Y: protocol.Number(GridMargin + row*uint64(in.CellHeight)),
	}
}
