package tool

import (
	"github.com/m-mizutani/imoye/pkg/usecase/corpus"
)

// Client contains shared resources that tools can use
type Client struct {
	Corpus *corpus.UseCase
}
