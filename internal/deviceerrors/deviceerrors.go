// Package deviceerrors defines the stable, user-facing error taxonomy for
// the SDK: connection, communication, compatibility, application and
// bootloader failures carry one of these codes. Codec, parse and version
// errors are returned as plain wrapped errors, not as one of these codes.
package deviceerrors

import "fmt"

// Kind groups error codes by the layer that raised them.
type Kind int

const (
	KindConnection Kind = iota
	KindCommunication
	KindCompatibility
	KindApp
	KindBootloader
)

// Error is the concrete type for every coded failure in this module. It
// satisfies error and carries a stable Code a caller can switch on without
// depending on Message text.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Code, so errors.Is
// matches a WithCause copy against its sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithCause attaches an underlying transport/codec error for %w-style
// unwrapping while keeping the stable Code at the front of Error().
func (e *Error) WithCause(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, cause: cause}
}

func newErr(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Connection errors (CON_01xx).
var (
	ErrNotConnected     = newErr(KindConnection, "CON_0100", "No device connected")
	ErrConnectionClosed = newErr(KindConnection, "CON_0101", "Connection was closed while in process")
	ErrFailedToConnect  = newErr(KindConnection, "CON_0102", "Failed to create device connection")
)

// Communication errors (COM_00xx / COM_01xx).
var (
	ErrInBootloader     = newErr(KindCommunication, "COM_0000", "Device is in bootloader mode")
	ErrUnknownComm      = newErr(KindCommunication, "COM_0100", "Unknown error at communication module")
	ErrWriteError       = newErr(KindCommunication, "COM_0101", "Unable to write packet to the device")
	ErrWriteTimeout     = newErr(KindCommunication, "COM_0102", "Did not receive ACK of sent packet on time")
	ErrReadTimeout      = newErr(KindCommunication, "COM_0103", "Did not receive the expected data from device on time")
	ErrWriteRejected    = newErr(KindCommunication, "COM_0104", "The write packet operation was rejected by the device")
)

// Compatibility errors (COM_02xx).
var (
	ErrInvalidSDKOperation = newErr(KindCompatibility, "COM_0200", "The device sdk does not support this function")
	ErrDeviceNotSupported  = newErr(KindCompatibility, "COM_0201", "The connected device is not supported by this SDK")
)

// Application errors (APP_0xxx).
var (
	ErrUnknownApp            = newErr(KindApp, "APP_0000", "Unknown application error")
	ErrExecutingOtherCommand = newErr(KindApp, "APP_0101", "The device is executing some other command")
	ErrProcessAborted        = newErr(KindApp, "APP_0102", "The process was aborted")
	ErrDeviceAbort           = newErr(KindApp, "APP_0103", "The request was timed out on the device")
	ErrInvalidMsgFromDevice  = newErr(KindApp, "APP_0200", "Invalid result received from device")
	ErrInvalidAppIDFromDevice = newErr(KindApp, "APP_0201", "Invalid appId received from device")
	ErrInvalidMsg            = newErr(KindApp, "APP_0202", "Invalid result sent from app")
	ErrUnknownAppID          = newErr(KindApp, "APP_0203", "The app does not exist on device")
	ErrAppNotActive          = newErr(KindApp, "APP_0204", "The app is not active on the device")
	ErrDeviceSetupRequired   = newErr(KindApp, "APP_0205", "Device setup is required")
	ErrAppTimeout            = newErr(KindApp, "APP_0206", "Operation timed out on device")
	ErrDeviceSessionInvalid  = newErr(KindApp, "APP_0207", "Could not establish session on device. Try again, or contact support")
	ErrWalletNotFound        = newErr(KindApp, "APP_0300", "Selected wallet is not present on the device")
	ErrWalletPartialState    = newErr(KindApp, "APP_0301", "Selected wallet is in partial state")
	ErrCardOperationFailed   = newErr(KindApp, "APP_0400", "Card operation failed")
	ErrUserRejection         = newErr(KindApp, "APP_0501", "User rejected the operation")
	ErrCorruptData           = newErr(KindApp, "APP_0600", "Corrupt data error from device")
	ErrDeviceAuthFailed      = newErr(KindApp, "APP_0700", "Device seems to be compromised")
	ErrCardAuthFailed        = newErr(KindApp, "APP_0701", "Card seems to be compromised")
)

// Bootloader errors (BTL_01xx).
var (
	ErrNotInBootloader          = newErr(KindBootloader, "BTL_0000", "The device is not in bootloader mode")
	ErrFirmwareSizeLimit        = newErr(KindBootloader, "BTL_0100", "Firmware size limit exceeded")
	ErrWrongHardwareVersion     = newErr(KindBootloader, "BTL_0101", "Wrong hardware version")
	ErrWrongMagicNumber         = newErr(KindBootloader, "BTL_0102", "Wrong magic number")
	ErrSignatureNotVerified     = newErr(KindBootloader, "BTL_0103", "Signature not verified")
	ErrLowerFirmwareVersion     = newErr(KindBootloader, "BTL_0104", "Lower firmware version")
	ErrNotInReceivingMode       = newErr(KindBootloader, "BTL_0105", "The device is in fault state")
	ErrFlashWriteError          = newErr(KindBootloader, "BTL_0106", "Flash write error")
	ErrFlashCRCMismatch         = newErr(KindBootloader, "BTL_0107", "Flash CRC mismatch")
	ErrFlashTimeout             = newErr(KindBootloader, "BTL_0108", "Flash timeout error")
	ErrFlashNACK                = newErr(KindBootloader, "BTL_0109", "Flash negative acknowledgement")
)

// CardOperationFailed builds the APP_0400_xxx sub-error reported by the card
// subsystem. subCode must be one of the CardSub* constants.
func CardOperationFailed(subCode string, message string) *Error {
	return newErr(KindApp, subCode, message)
}

// Card sub-error codes (APP_0400_xxx), from the card applet's status words.
const (
	CardSubUnknown                      = "APP_0400_001"
	CardSubNotPaired                    = "APP_0400_002"
	CardSubIncompatibleApplet           = "APP_0400_003"
	CardSubNullPointerException         = "APP_0400_004"
	CardSubTransactionException         = "APP_0400_005"
	CardSubFileInvalid                  = "APP_0400_006"
	CardSubSecurityConditionsNotSatisfied = "APP_0400_007"
	CardSubConditionsNotSatisfied       = "APP_0400_008"
	CardSubWrongData                    = "APP_0400_009"
	CardSubFileNotFound                 = "APP_0400_010"
	CardSubRecordNotFound                = "APP_0400_011"
	CardSubFileFull                     = "APP_0400_012"
	CardSubCorrectLength00              = "APP_0400_013"
	CardSubInvalidIns                   = "APP_0400_014"
	CardSubNotPairedWithDevice          = "APP_0400_015"
	CardSubCryptoException              = "APP_0400_016"
	CardSubWalletLocked                 = "APP_0400_017"
	CardSubInsBlocked                   = "APP_0400_018"
	CardSubOutOfBoundary                = "APP_0400_019"
)

var cardSubMessages = map[string]string{
	CardSubUnknown:                        "Unknown card error",
	CardSubNotPaired:                      "Card is not paired",
	CardSubIncompatibleApplet:             "Incompatible applet version",
	CardSubNullPointerException:           "Null pointer exception",
	CardSubTransactionException:           "Operation failed on card (Tx Exp)",
	CardSubFileInvalid:                    "Tapped card family id mismatch",
	CardSubSecurityConditionsNotSatisfied: "Security conditions not satisfied, i.e. pairing session invalid",
	CardSubConditionsNotSatisfied:         "Wrong card sequence",
	CardSubWrongData:                      "Invalid APDU length",
	CardSubFileNotFound:                   "Corrupted card",
	CardSubRecordNotFound:                 "Wallet does not exist on device",
	CardSubFileFull:                       "Card is full",
	CardSubCorrectLength00:                "Incorrect pin entered",
	CardSubInvalidIns:                     "Applet unknown error",
	CardSubNotPairedWithDevice:            "Card pairing to device missing",
	CardSubCryptoException:                "Operation failed on card (Crypto Exp)",
	CardSubWalletLocked:                   "Locked wallet status word, POW meaning proof of word",
	CardSubInsBlocked:                     "Card health critical, migration required",
	CardSubOutOfBoundary:                  "Operation failed on card (Out of boundary)",
}

// CardSubError returns the full *Error for a card status-word sub-code.
func CardSubError(subCode string) *Error {
	msg, ok := cardSubMessages[subCode]
	if !ok {
		msg = cardSubMessages[CardSubUnknown]
		subCode = CardSubUnknown
	}
	return CardOperationFailed(subCode, msg)
}

// CanRetry centralizes the predicate that decides whether a write/ack
// failure should be retried or surfaced immediately. Every connection error
// (no device, failed connect, closed mid-process), write rejections and
// abort signals (from either side) are never retryable; everything else
// (timeouts, generic write/read errors) is.
func CanRetry(err error) bool {
	if err == nil {
		return true
	}
	var de *Error
	if !AsError(err, &de) {
		return true
	}
	switch de.Code {
	case ErrNotConnected.Code, ErrFailedToConnect.Code, ErrConnectionClosed.Code, ErrWriteRejected.Code, ErrProcessAborted.Code, ErrDeviceAbort.Code:
		return false
	default:
		return true
	}
}

// AsError is a small errors.As shim kept local to avoid importing the
// stdlib errors package into every call site that only needs this check.
func AsError(err error, target **Error) bool {
	for err != nil {
		if de, ok := err.(*Error); ok {
			*target = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
