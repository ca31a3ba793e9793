package resp

import (
	"fmt"
	"strconv"
)

// Command encoding: every command travels as a RESP array of bulk
// strings, the multi-bulk form servers accept regardless of transport.

// EncodeCommandArgs appends the multi-bulk encoding of one command built
// from discrete binary-safe tokens (args[0] is the command name).
// The buffer is untouched on failure.
func EncodeCommandArgs(buf *Buffer, args ...[]byte) error {
	if len(args) == 0 {
		return &FormatError{Message: "empty command"}
	}
	buf.WriteByte(MarkerArray)
	buf.WriteString(strconv.Itoa(len(args)))
	buf.WriteString(CRLF)
	for _, arg := range args {
		buf.WriteByte(MarkerBulk)
		buf.WriteString(strconv.Itoa(len(arg)))
		buf.WriteString(CRLF)
		buf.Write(arg)
		buf.WriteString(CRLF)
	}
	return nil
}

// EncodeCommand appends the multi-bulk encoding of one pre-formed
// command line. The line is split on blanks with shell-like quoting:
// double quotes accept the escapes \n \r \t \b \a \\ \" and \xHH,
// single quotes accept only \'. The buffer is untouched on failure.
func EncodeCommand(buf *Buffer, command string) error {
	args, err := splitCommand(command)
	if err != nil {
		return err
	}
	return EncodeCommandArgs(buf, args...)
}

// EncodeCommandf appends the multi-bulk encoding of a printf-formatted
// command line. The formatted result is tokenized like EncodeCommand, so
// arguments containing blanks need quoting; for binary-safe arguments
// use EncodeCommandArgs instead.
func EncodeCommandf(buf *Buffer, format string, a ...any) error {
	return EncodeCommand(buf, fmt.Sprintf(format, a...))
}

// SplitCommand tokenizes a command line with the same quoting rules as
// EncodeCommand, without encoding anything. Servers use it to parse
// inline commands.
func SplitCommand(command string) ([][]byte, error) {
	return splitCommand(command)
}

// splitCommand tokenizes a command line. Grammar follows the inline
// command syntax of redis-cli.
func splitCommand(line string) ([][]byte, error) {
	var args [][]byte
	i := 0
	for {
		for i < len(line) && isBlank(line[i]) {
			i++
		}
		if i >= len(line) {
			break
		}

		var arg []byte
		var err error
		switch line[i] {
		case '"':
			arg, i, err = cutDoubleQuoted(line, i+1)
		case '\'':
			arg, i, err = cutSingleQuoted(line, i+1)
		default:
			start := i
			for i < len(line) && !isBlank(line[i]) {
				i++
			}
			arg = []byte(line[start:i])
		}
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if len(args) == 0 {
		return nil, &FormatError{Message: "empty command"}
	}
	return args, nil
}

func cutDoubleQuoted(line string, i int) ([]byte, int, error) {
	arg := []byte{}
	for i < len(line) {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			switch e := line[i]; e {
			case 'n':
				arg = append(arg, '\n')
			case 'r':
				arg = append(arg, '\r')
			case 't':
				arg = append(arg, '\t')
			case 'b':
				arg = append(arg, '\b')
			case 'a':
				arg = append(arg, '\a')
			case 'x':
				if i+2 < len(line) && isHex(line[i+1]) && isHex(line[i+2]) {
					arg = append(arg, hexValue(line[i+1])<<4|hexValue(line[i+2]))
					i += 2
				} else {
					arg = append(arg, e)
				}
			default:
				arg = append(arg, e)
			}
			i++
		case c == '"':
			i++
			if i < len(line) && !isBlank(line[i]) {
				return nil, i, &FormatError{Message: "closing quote must be followed by a blank"}
			}
			return arg, i, nil
		default:
			arg = append(arg, c)
			i++
		}
	}
	return nil, i, &FormatError{Message: "unbalanced double quote"}
}

func cutSingleQuoted(line string, i int) ([]byte, int, error) {
	arg := []byte{}
	for i < len(line) {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line) && line[i+1] == '\'':
			arg = append(arg, '\'')
			i += 2
		case c == '\'':
			i++
			if i < len(line) && !isBlank(line[i]) {
				return nil, i, &FormatError{Message: "closing quote must be followed by a blank"}
			}
			return arg, i, nil
		default:
			arg = append(arg, c)
			i++
		}
	}
	return nil, i, &FormatError{Message: "unbalanced single quote"}
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t'
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
