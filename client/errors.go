package client

import "gostomp/frame"

// MissingReceiptError reports a synchronous send whose receipt never
// arrived within the receipt wait budget.
type MissingReceiptError struct {
	ReceiptID string
}

func (e *MissingReceiptError) Error() string {
	return "stomp: no receipt received for id " + e.ReceiptID
}

// UnexpectedResponseError reports a well-formed frame arriving where a
// specific one was expected, such as a RECEIPT with the wrong receipt-id.
type UnexpectedResponseError struct {
	Expected string
	Frame    *frame.Frame
}

func (e *UnexpectedResponseError) Error() string {
	return "stomp: expected " + e.Expected + ", got " + e.Frame.Command + " frame"
}
