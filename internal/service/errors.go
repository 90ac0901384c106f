package service

import "errors"

var (
	ErrEmptyCart           = errors.New("cart is empty, nothing to order")
	ErrInvalidQuantity     = errors.New("quantity must be a positive integer")
	ErrInvalidStatus       = errors.New("unrecognized order status")
	ErrIllegalTransition   = errors.New("illegal transition of order status")
	ErrOrderNotCancellable = errors.New("order can no longer be cancelled")
	ErrOrderAccessDenied   = errors.New("order belongs to another user")
)
