package nfe

import (
	"github.com/notazul/notazul/internal/nfe/builder"
	"github.com/notazul/notazul/internal/nfe/certmanager"
	"github.com/notazul/notazul/internal/nfe/signer"
	"github.com/notazul/notazul/internal/nfe/transmitter"
	"go.uber.org/fx"
)

var Module = fx.Module("nfe",
	fx.Provide(
		builder.New,
		certmanager.NewManager,
		signer.NewSigner,
		transmitter.NewTransmitter,
	),
)
