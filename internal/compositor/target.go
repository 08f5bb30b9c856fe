package compositor

import (
	"slices"

	"github.com/roach88/ledcore/internal/ir"
)

// ResolveTarget turns a layer's target reference into ascending frame
// indices. Missing zones/groups and indices outside [0, size) fail with
// UnresolvedReference; empty targets fail with InvalidProject.
func ResolveTarget(p ir.Project, l ir.Layer) ([]int, error) {
	size := p.Leds
	switch l.Target.Kind {
	case ir.TargetAll, "":
		out := make([]int, size)
		for i := range out {
			out[i] = i
		}
		return out, nil

	case ir.TargetZone:
		z, ok := p.Zones[l.Target.Zone]
		if !ok {
			return nil, &ir.Error{
				Code:       ir.ErrCodeUnresolvedReference,
				Subject:    l.Target.Zone,
				Message:    "layer " + l.ID + " targets unknown zone",
				Suggestion: ir.Suggest(l.Target.Zone, keys(p.Zones)),
			}
		}
		if z.Start < 0 || z.End > size {
			return nil, ir.NewError(ir.ErrCodeUnresolvedReference, l.Target.Zone,
				"zone [%d,%d) is outside the %d-LED frame", z.Start, z.End, size)
		}
		if z.Len() == 0 {
			return nil, ir.NewError(ir.ErrCodeInvalidProject, l.Target.Zone, "zone is empty")
		}
		out := make([]int, 0, z.Len())
		for i := z.Start; i < z.End; i++ {
			out = append(out, i)
		}
		return out, nil

	case ir.TargetGroup:
		g, ok := p.Groups[l.Target.Group]
		if !ok {
			return nil, &ir.Error{
				Code:       ir.ErrCodeUnresolvedReference,
				Subject:    l.Target.Group,
				Message:    "layer " + l.ID + " targets unknown group",
				Suggestion: ir.Suggest(l.Target.Group, keys(p.Groups)),
			}
		}
		out := slices.Clone(g)
		slices.Sort(out)
		out = slices.Compact(out)
		for _, idx := range out {
			if idx < 0 || idx >= size {
				return nil, ir.NewError(ir.ErrCodeUnresolvedReference, l.Target.Group,
					"group index %d is outside the %d-LED frame", idx, size)
			}
		}
		if len(out) == 0 {
			return nil, ir.NewError(ir.ErrCodeInvalidProject, l.Target.Group, "group is empty")
		}
		return out, nil
	}
	return nil, ir.NewError(ir.ErrCodeInvalidProject, string(l.Target.Kind), "unknown target kind on layer %s", l.ID)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
