package command

import (
	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/wire"
)

// Object part tags used by the execute function protocol. Inline function
// types register their own tags from 100 on.
const (
	TagRemoteException      uint64 = 1
	TagMemberMappedArgument uint64 = 2
	TagFunctionDescriptor   uint64 = 3
	TagInlineFunctionBase   uint64 = 100
)

// NewCodec returns a codec that knows every type this command exchanges.
func NewCodec() (*wire.Codec, error) {
	codec, err := wire.NewCodec()
	if err != nil {
		return nil, err
	}

	for tag, sample := range map[uint64]any{
		TagRemoteException:      models.RemoteException{},
		TagMemberMappedArgument: models.MemberMappedArgument{},
		TagFunctionDescriptor:   models.FunctionDescriptor{},
	} {
		err = codec.Register(sample, tag)
		if err != nil {
			return nil, err
		}
	}

	return codec, nil
}
