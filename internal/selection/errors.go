package selection

import (
	"errors"

	"go.klb.dev/xselect/internal/atom"
)

var (
	// ErrAllocation reports that the transfer buffer could not grow.
	ErrAllocation = errors.New("selection: transfer buffer exhausted")

	// ErrResolution reports that protocol atoms are unavailable.
	ErrResolution = atom.ErrResolution

	// ErrProtocolViolation reports a reply the peer should never have sent,
	// such as a missing or malformed reply property.
	ErrProtocolViolation = errors.New("selection: protocol violation")

	// ErrPeerWrite reports that the server rejected a property mutation or
	// event delivery. No partial buffer is returned.
	ErrPeerWrite = errors.New("selection: server rejected write")

	// ErrConversionRefused reports that the owner (or the server, when
	// there is no owner) answered with property None.
	ErrConversionRefused = errors.New("selection: conversion refused")

	// ErrTimeout reports that no event arrived within the configured wait.
	ErrTimeout = errors.New("selection: timed out waiting for peer")
)
