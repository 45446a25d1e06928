package adapter

var NewCreateCorpusRequestForTest = newCreateCorpusRequest
