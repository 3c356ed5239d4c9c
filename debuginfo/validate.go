package debuginfo

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/deepnoodle-ai/dexasm/code"
	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
)

// Validate decodes data and checks it against the entries it was encoded
// from. Every position must come back unchanged. Locals must come back in
// order with the same register, start or end, name and type; a parameter
// described by the header may come back at address 0.
//
// Failures are encoder defects. They are collected and returned as a single
// errz.ErrDebugMismatch error.
func Validate(data []byte, positions []code.PositionEntry, locals []code.LocalEntry,
	params DecodeParams, resolver cst.Resolver) error {
	decoded, err := Decode(data, params)
	if err != nil {
		return errz.New(errz.ErrDebugMismatch, "cannot decode debug info").WithCause(err)
	}

	var result *multierror.Error
	result = multierror.Append(result, validatePositions(decoded.Positions, positions)...)
	base := paramBase(params.RegisterSize, params.ParamTypes, params.Static)
	if err := validateLocals(mergeHeader(decoded.Locals, params.ThisIndex), locals, base, resolver); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return errz.Newf(errz.ErrDebugMismatch, "%d debug info mismatches", len(result.Errors)).WithCause(err)
	}
	return nil
}

func validatePositions(decoded, original []code.PositionEntry) []error {
	var errs []error
	if len(decoded) != len(original) {
		errs = append(errs, errz.Newf(errz.ErrDebugMismatch,
			"decoded positions table not same size (%d != %d)", len(decoded), len(original)))
	}
	for _, d := range decoded {
		found := false
		for i := len(original) - 1; i >= 0; i-- {
			if original[i] == d {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, errz.New(errz.ErrDebugMismatch, "could not match position entry").
				WithLocation(errz.Location{Address: d.Address, Line: d.Line, Register: -1}))
		}
	}
	return errs
}

// mergeHeader replaces a header entry that carries no name, or only the
// "this" name, with a later address-0 start on the same register: a
// parameter with a signature is named by an extended start right after the
// header.
func mergeHeader(decoded []Local, thisIndex int) []Local {
	out := append([]Local(nil), decoded...)
	for i := 0; i < len(out); i++ {
		if !out[i].Header || (out[i].NameIndex >= 0 && out[i].NameIndex != thisIndex) {
			continue
		}
		for j := i + 1; j < len(out); j++ {
			if out[j].Address != 0 {
				break
			}
			if out[j].Header || out[j].Reg != out[i].Reg || !out[j].Start {
				continue
			}
			merged := out[j]
			merged.Header = true
			out[i] = merged
			out = append(out[:j], out[j+1:]...)
			break
		}
	}
	return out
}

func mismatch(msg string, orig code.LocalEntry) *errz.AssemblyError {
	return errz.New(errz.ErrDebugMismatch, msg).
		WithLocation(errz.Location{Address: orig.Address, Line: -1, Register: orig.Reg.Num})
}

// validateLocals matches original entries against decoded ones. The first
// entry of each parameter register is matched against the header; every
// other entry against the next decoded stream entry. It stops at the first
// mismatch since later entries can no longer be paired.
func validateLocals(decoded []Local, original []code.LocalEntry, base int, resolver cst.Resolver) error {
	header := map[int]Local{}
	var stream []Local
	for _, l := range decoded {
		if l.Header {
			header[l.Reg] = l
		} else {
			stream = append(stream, l)
		}
	}

	seenParam := map[int]bool{}
	at := 0
	for _, orig := range original {
		reg := orig.Reg.Num
		if reg >= base && !seenParam[reg] {
			seenParam[reg] = true
			h, ok := header[reg]
			if !ok {
				return mismatch("parameter local missing from header", orig)
			}
			if err := compareLocal(h, orig, resolver); err != nil {
				return err
			}
			continue
		}
		if orig.Disposition == code.EndReplaced {
			continue
		}
		for at < len(stream) && stream[at].NameIndex < 0 {
			at++
		}
		if at >= len(stream) {
			return mismatch(fmt.Sprintf("local %s missing from decoded stream", orig), orig)
		}
		d := stream[at]
		at++
		if d.Address != orig.Address {
			return mismatch(fmt.Sprintf("local address mismatch: decoded %04x", d.Address), orig)
		}
		if err := compareLocal(d, orig, resolver); err != nil {
			return err
		}
	}
	return nil
}

func compareLocal(d Local, orig code.LocalEntry, resolver cst.Resolver) error {
	if d.Reg != orig.Reg.Num {
		return mismatch(fmt.Sprintf("local register mismatch: decoded v%d", d.Reg), orig)
	}
	if d.Start != orig.IsStart() {
		return mismatch("local start/end mismatch", orig)
	}
	if resolver == nil || orig.Reg.Local == nil {
		return nil
	}
	if d.NameIndex >= 0 && orig.Reg.Local.Name != "" &&
		d.NameIndex != resolver.IndexOf(cst.String(orig.Reg.Local.Name)) {
		return mismatch(fmt.Sprintf("local name mismatch: decoded string %d", d.NameIndex), orig)
	}
	if d.TypeIndex >= 0 && orig.Reg.Local.Type != "" &&
		d.TypeIndex != resolver.IndexOf(orig.Reg.Local.Type) {
		return mismatch(fmt.Sprintf("local type mismatch: decoded type %d", d.TypeIndex), orig)
	}
	return nil
}
