package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/harunnryd/agrichat/pkg/chat"
)

// runREPL submits one turn per input line and writes each rendered turn as
// a JSON line. A line starting with "{" is decoded as a full chat.Input;
// anything else is the message text.
func runREPL(ctx context.Context, conv *chat.Conversation, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	enc := json.NewEncoder(out)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		input, err := parseLine(line)
		if err != nil {
			if err := enc.Encode(map[string]string{"error": err.Error()}); err != nil {
				return err
			}
			continue
		}
		if _, err := conv.Submit(ctx, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case res, ok := <-conv.Results():
			if !ok {
				return nil
			}
			if err := enc.Encode(res); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
	return scanner.Err()
}

func parseLine(line string) (chat.Input, error) {
	if !strings.HasPrefix(line, "{") {
		return chat.Input{Text: line}, nil
	}
	var input chat.Input
	if err := json.Unmarshal([]byte(line), &input); err != nil {
		return chat.Input{}, fmt.Errorf("decode input: %w", err)
	}
	return input, nil
}
