package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/taoyao-code/cctalk-host/internal/logging"
	"github.com/taoyao-code/cctalk-host/internal/protocol/cctalk"
	"github.com/taoyao-code/cctalk-host/internal/serialport"
)

var (
	defaultSealInput   = []byte{1, 2, 0, 31, 0}
	defaultUnsealInput = []byte{1, 2, 116, 0, 31, 0, 84}
)

// runTool 子命令入口，返回进程退出码
func runTool(stdout, stderr io.Writer, modeName string, args []string) int {
	mode, err := cctalk.ParseMode(modeName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	var cmdErr error
	switch strings.ToLower(args[0]) {
	case "seal":
		cmdErr = seal(stdout, mode, args[1:])
	case "unseal":
		cmdErr = unseal(stdout, mode, args[1:])
	case "ports":
		cmdErr = ports(stdout)
	default:
		cmdErr = fmt.Errorf("unknown command %q (want seal, unseal or ports)", args[0])
	}
	if cmdErr != nil {
		fmt.Fprintln(stderr, cmdErr)
		return 1
	}
	return 0
}

// seal [address len header payload...]：给未封装的帧加上校验字节
func seal(w io.Writer, mode cctalk.Mode, args []string) error {
	in, err := parseBytes(args, defaultSealInput)
	if err != nil {
		return err
	}
	if len(in) < 3 {
		return errors.New("seal: need at least address, length and header")
	}
	if int(in[1]) != len(in)-3 {
		return fmt.Errorf("seal: length byte %d does not match %d payload bytes", in[1], len(in)-3)
	}
	out, err := cctalk.Build(mode, in[0], in[2], in[3:])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Input:  %s\n", logging.Dec(in))
	fmt.Fprintf(w, "Output: %s\n", logging.Dec(out))
	fmt.Fprintf(w, "Hex:    %s\n", logging.Hex(out))
	return nil
}

// unseal [sealed bytes...]：去掉校验字节并校验
func unseal(w io.Writer, mode cctalk.Mode, args []string) error {
	in, err := parseBytes(args, defaultUnsealInput)
	if err != nil {
		return err
	}
	frame, valid := cctalk.Parse(mode, in)
	fmt.Fprintf(w, "Input:  %s\n", logging.Dec(in))
	fmt.Fprintf(w, "Output: %s\n", logging.Dec(frame.Stripped))
	fmt.Fprintf(w, "Valid:  %t\n", valid)
	if frame.Complete() {
		fmt.Fprintf(w, "Header: %d\n", frame.Header)
		fmt.Fprintf(w, "Data:   %s\n", logging.Dec(frame.Payload))
	}
	return nil
}

func ports(w io.Writer) error {
	list, err := serialport.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range list {
		line := p.Name
		if p.IsUSB {
			line += fmt.Sprintf("  USB %s:%s", p.VID, p.PID)
			if p.SerialNumber != "" {
				line += " sn=" + p.SerialNumber
			}
		}
		if p.Description != "" {
			line += "  " + p.Description
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// parseBytes 接受 "1 2 0" 或 "1,2,0"，也接受 0x 前缀
func parseBytes(args []string, def []byte) ([]byte, error) {
	fields := make([]string, 0, len(args))
	for _, a := range args {
		fields = append(fields, strings.FieldsFunc(a, func(r rune) bool { return r == ',' || r == ' ' })...)
	}
	if len(fields) == 0 {
		return append([]byte(nil), def...), nil
	}
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(f, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid byte %q: must be 0..255", f)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
