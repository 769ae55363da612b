package psd

import (
	"fmt"
	"sort"
)

type treeOrder byte

const (
	orderGroup treeOrder = 'G'
	orderLayer treeOrder = 'L'
	orderDone  treeOrder = 'D'
)

type layerFrame struct {
	record   *LayerRecord
	channels LayerChannels
	groupID  int
}

type groupFrame struct {
	record   *LayerRecord
	channels LayerChannels
	id       int
	parentID int
}

// layerTree is the flattened hierarchy: replaying orders against layers
// and groups in sequence rebuilds the nesting
type layerTree struct {
	layers []layerFrame
	groups []groupFrame
	orders []treeOrder
}

// buildLayerTree walks records top layer first. A folder record opens a
// group and the matching bounding divider closes it. Groups still open at
// the end are closed implicitly.
func buildLayerTree(info LayerInfo) (*layerTree, error) {
	t := &layerTree{}
	var stack []groupFrame
	lastID := 0

	current := func() int {
		if len(stack) == 0 {
			return 0
		}
		return stack[len(stack)-1].id
	}

	for i, rec := range info.Records {
		var channels LayerChannels
		if i < len(info.Channels) {
			channels = info.Channels[i]
		}

		divider := GroupDividerOther
		if rec.DividerType != nil {
			divider = *rec.DividerType
		}

		switch divider {
		case GroupDividerOpenFolder, GroupDividerClosedFolder:
			lastID++
			stack = append(stack, groupFrame{
				record:   rec,
				channels: channels,
				id:       lastID,
				parentID: current(),
			})
			t.orders = append(t.orders, orderGroup)
		case GroupDividerBoundingSectionDivider:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: layer %d", ErrUnbalancedGroupDivider, i)
			}
			t.groups = append(t.groups, stack[len(stack)-1])
			stack = stack[:len(stack)-1]
			t.orders = append(t.orders, orderDone)
		default:
			t.layers = append(t.layers, layerFrame{
				record:   rec,
				channels: channels,
				groupID:  current(),
			})
			t.orders = append(t.orders, orderLayer)
		}
	}

	for len(stack) > 0 {
		t.groups = append(t.groups, stack[len(stack)-1])
		stack = stack[:len(stack)-1]
		t.orders = append(t.orders, orderDone)
	}

	// groups close innermost first but are replayed in opening order
	sort.SliceStable(t.groups, func(i, j int) bool {
		return t.groups[i].id < t.groups[j].id
	})
	return t, nil
}
