package command

import (
	"fmt"
	"reflect"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/wire"
)

// Decoder turns an execute-region-function message into a request.
type Decoder struct {
	codec          *wire.Codec
	defaultTimeout int32
}

func NewDecoder(codec *wire.Codec, defaultTimeoutMillis int32) *Decoder {
	return &Decoder{codec: codec, defaultTimeout: defaultTimeoutMillis}
}

// Decode parses msg as sent by a client speaking version. Any failure is a
// *DecodeError.
func (d *Decoder) Decode(msg *wire.Message, version wire.Version) (*models.ExecutionRequest, error) {
	l := layoutFor(version)
	r := newPartReader(msg, d.codec)
	req := &models.ExecutionRequest{TimeoutMillis: d.defaultTimeout}

	fail := func(err error) (*models.ExecutionRequest, error) {
		return nil, &DecodeError{
			HasResult: req.HasResult,
			Function:  req.Function.String(),
			Part:      r.position() - 1,
			Err:       err,
		}
	}

	statePart, err := r.next()
	if err != nil {
		return fail(err)
	}

	header, err := l.header(statePart.Bytes())
	if err != nil {
		return fail(err)
	}

	req.State = header.State
	req.HasResult = header.State.HasResult()

	if header.HasTimeout {
		req.TimeoutMillis = header.TimeoutMillis
	}

	if p := r.optional(); p != nil {
		req.RegionName = p.String()
	}

	if p := r.optional(); p != nil {
		req.Function, err = d.functionRef(p)
		if err != nil {
			return fail(err)
		}
	}

	argsPart, err := r.next()
	if err != nil {
		return fail(err)
	}

	req.Args, err = argsPart.Decode(d.codec)
	if err != nil {
		return fail(err)
	}

	if p := r.optional(); p != nil && p.Object {
		v, err := p.Decode(d.codec)
		if err != nil {
			return fail(err)
		}

		req.MemberArgs = memberMappedArgument(v)
	}

	flagsPart, err := r.next()
	if err != nil {
		return fail(err)
	}

	flags, err := l.flags(flagsPart.Bytes())
	if err != nil {
		return fail(err)
	}

	req.BucketsAsFilter = flags.BucketsAsFilter
	req.IsReExecute = flags.IsReExecute

	req.Filter, err = r.readSet()
	if err != nil {
		return fail(err)
	}

	req.ExcludedMembers, err = r.readSet()
	if err != nil {
		return fail(err)
	}

	return req, nil
}

func (d *Decoder) functionRef(p *wire.Part) (models.FunctionRef, error) {
	v, err := p.StringOrObject(d.codec)
	if err != nil {
		return models.FunctionRef{}, err
	}

	switch f := v.(type) {
	case nil:
		return models.FunctionRef{}, nil
	case string:
		return models.FunctionRef{ID: f}, nil
	}

	fn, ok := asFunction(v)
	if !ok {
		return models.FunctionRef{}, fmt.Errorf("%w: %T", ErrUnsupportedFunction, v)
	}

	return models.FunctionRef{Inline: fn}, nil
}

// asFunction accepts inline functions whose methods have pointer receivers.
func asFunction(v any) (models.Function, bool) {
	if fn, ok := v.(models.Function); ok {
		return fn, true
	}

	ptr := reflect.New(reflect.TypeOf(v))
	ptr.Elem().Set(reflect.ValueOf(v))

	fn, ok := ptr.Interface().(models.Function)

	return fn, ok
}

// memberMappedArgument ignores payloads of any other type.
func memberMappedArgument(v any) *models.MemberMappedArgument {
	switch m := v.(type) {
	case models.MemberMappedArgument:
		return &m
	case *models.MemberMappedArgument:
		return m
	default:
		return nil
	}
}
