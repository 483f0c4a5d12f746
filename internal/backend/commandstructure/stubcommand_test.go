package commandstructure

// stubCommand appends a tag to its input, or fails with err when set
type stubCommand struct {
	name string
	tag  string
	err  error
}

func (s *stubCommand) Name() string {
	return s.name
}

func (s *stubCommand) Execute(imageData []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := append([]byte{}, imageData...)
	return append(out, s.tag...), nil
}

func stubFactory(name string) CommandFactory {
	return func(params map[string]any) (Command, error) {
		if err := ValidateRequiredParams(params, []string{"tag"}); err != nil {
			return nil, err
		}
		return &stubCommand{name: name, tag: GetStringParam(params, "tag", "")}, nil
	}
}
