package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainFrame    = "ledcore/frame/v1"
	DomainBehavior = "ledcore/behavior/v1"
	DomainTarget   = "ledcore/target/v1"
	DomainProject  = "ledcore/project/v1"
	DomainCatalog  = "ledcore/catalog/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FrameDigest hashes an already-encoded pixel buffer under DomainFrame.
func FrameDigest(pixels []byte) string {
	return hashWithDomain(DomainFrame, pixels)
}

// BehaviorFingerprint identifies a behavior's export-relevant metadata.
// Any change to capabilities or parameter contracts changes the fingerprint.
func BehaviorFingerprint(c BehaviorCapabilities) string {
	params := make(IRArray, 0, len(c.Params))
	for _, p := range c.Params {
		params = append(params, IRObject{
			"name":      IRString(p.Name),
			"min":       Float(p.Min),
			"max":       Float(p.Max),
			"tolerance": Float(p.Tolerance),
		})
	}
	obj := IRObject{
		"id":               IRString(c.ID),
		"firmware_mapping": IRBool(c.FirmwareMapping),
		"preview_only":     IRBool(c.PreviewOnly),
		"requires_matrix":  IRBool(c.RequiresMatrix),
		"requires_audio":   IRBool(c.RequiresAudio),
		"min_memory":       IRString(c.MinMemory),
		"params":           params,
	}
	return mustHash(DomainBehavior, obj)
}

// TargetFingerprint identifies a target descriptor. Op-set order is not
// significant.
func TargetFingerprint(t ExportTarget) string {
	ops := slices.Clone(t.SupportedOpSet)
	slices.Sort(ops)
	obj := IRObject{
		"id":                   IRString(t.ID),
		"supports_matrix":      IRBool(t.SupportsMatrix),
		"supports_audio":       IRBool(t.SupportsAudio),
		"memory_class":         IRString(t.MemoryClass),
		"ram_bytes":            IRInt(t.RAMBytes),
		"max_leds_hard":        IRInt(t.MaxLedsHard),
		"max_leds_recommended": IRInt(t.MaxLedsRecommended),
		"supported_op_set":     Strings(ops),
	}
	return mustHash(DomainTarget, obj)
}

// CatalogFingerprint identifies a set of behavior fingerprints. Order and
// duplicates are not significant.
func CatalogFingerprint(behaviors []string) string {
	fps := slices.Clone(behaviors)
	slices.Sort(fps)
	fps = slices.Compact(fps)
	return mustHash(DomainCatalog, IRObject{"behaviors": Strings(fps)})
}

// ProjectFingerprint identifies a project declaration. Layer config values
// must be strings, numbers, bools, or lists/maps of those.
func ProjectFingerprint(p Project) (string, error) {
	obj, err := projectToIR(p)
	if err != nil {
		return "", fmt.Errorf("ProjectFingerprint: %w", err)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ProjectFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProject, canonical), nil
}

// mustHash is used for objects built entirely from IR constructors, which
// cannot fail to marshal.
func mustHash(domain string, obj IRObject) string {
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		panic(fmt.Sprintf("ir: canonical marshal of %s: %v", domain, err))
	}
	return hashWithDomain(domain, canonical)
}

func projectToIR(p Project) (IRObject, error) {
	numbers := IRObject{}
	for k, v := range p.Variables.Number {
		numbers[k] = Float(v)
	}
	toggles := IRObject{}
	for k, v := range p.Variables.Toggle {
		toggles[k] = IRBool(v)
	}
	zones := IRObject{}
	for k, z := range p.Zones {
		zones[k] = IRArray{IRInt(z.Start), IRInt(z.End)}
	}
	groups := IRObject{}
	for k, idx := range p.Groups {
		arr := make(IRArray, len(idx))
		for i, n := range idx {
			arr[i] = IRInt(n)
		}
		groups[k] = arr
	}

	layers := make(IRArray, 0, len(p.Layers))
	for _, l := range p.Layers {
		cfg, err := anyToIR(l.Config)
		if err != nil {
			return nil, fmt.Errorf("layer %q config: %w", l.ID, err)
		}
		if cfg == nil {
			cfg = IRObject{}
		}
		params := IRObject{}
		for k, v := range l.Params {
			params[k] = Float(v)
		}
		mods := make(IRArray, 0, len(l.Modulators))
		for _, m := range l.Modulators {
			mods = append(mods, IRObject{
				"param":   IRString(m.Param),
				"source":  IRString(m.Source),
				"mode":    IRString(m.Mode),
				"amount":  Float(m.Amount),
				"rate_hz": Float(m.RateHz),
				"bias":    Float(m.Bias),
			})
		}
		layers = append(layers, IRObject{
			"id":          IRString(l.ID),
			"order_index": IRInt(l.OrderIndex),
			"enabled":     IRBool(l.Enabled),
			"opacity":     Float(l.Opacity),
			"blend":       IRString(l.Blend),
			"target": IRObject{
				"kind":  IRString(l.Target.Kind),
				"zone":  IRString(l.Target.Zone),
				"group": IRString(l.Target.Group),
			},
			"behavior":   IRString(l.Behavior),
			"params":     params,
			"config":     cfg,
			"modulators": mods,
		})
	}

	rules := make(IRArray, 0, len(p.Rules))
	for _, r := range p.Rules {
		conds := make(IRArray, 0, len(r.Conditions))
		for _, c := range r.Conditions {
			conds = append(conds, IRObject{
				"signal": IRString(c.Signal),
				"op":     IRString(c.Op),
				"value":  Float(c.Value),
			})
		}
		rules = append(rules, IRObject{
			"id":      IRString(r.ID),
			"enabled": IRBool(r.Enabled),
			"trigger": IRObject{
				"kind":   IRString(r.Trigger.Kind),
				"signal": IRString(r.Trigger.Signal),
				"op":     IRString(r.Trigger.Op),
				"value":  Float(r.Trigger.Value),
				"upper":  Float(r.Trigger.Upper),
				"lower":  Float(r.Trigger.Lower),
			},
			"conditions": conds,
			"cond_mode":  IRString(r.CondMode),
			"action": IRObject{
				"kind":      IRString(r.Action.Kind),
				"var":       IRString(r.Action.Var),
				"layer":     IRString(r.Action.Layer),
				"param":     IRString(r.Action.Param),
				"precision": Float(r.Action.Precision),
				"value": IRObject{
					"src":     IRString(r.Action.Value.Src),
					"const":   Float(r.Action.Value.Const),
					"signal":  IRString(r.Action.Value.Signal),
					"scale":   Float(r.Action.Value.Scale),
					"bias":    Float(r.Action.Value.Bias),
					"as_bool": IRBool(r.Action.Value.AsBool),
				},
			},
		})
	}

	return IRObject{
		"name":   IRString(p.Name),
		"leds":   IRInt(p.Leds),
		"seed":   IRString(fmt.Sprintf("%d", p.Seed)),
		"layout": IRObject{"kind": IRString(p.Layout.Kind), "width": IRInt(p.Layout.Width), "height": IRInt(p.Layout.Height)},
		"variables": IRObject{
			"number": numbers,
			"toggle": toggles,
		},
		"zones":  zones,
		"groups": groups,
		"layers": layers,
		"rules":  rules,
	}, nil
}

// anyToIR converts decoded config values. Nil maps to a nil IRValue.
func anyToIR(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case float64:
		return Float(val), nil
	case []any:
		arr := make(IRArray, 0, len(val))
		for i, elem := range val {
			e, err := anyToIR(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			if e == nil {
				return nil, fmt.Errorf("[%d]: null is forbidden", i)
			}
			arr = append(arr, e)
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			e, err := anyToIR(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			if e == nil {
				continue
			}
			obj[k] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
