package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsDuplicateEntry(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-101' for key 'idx_customer_natural'"}
	if !IsDuplicateEntry(dup) {
		t.Fatal("error 1062 must be recognized as a duplicate entry")
	}
	if !IsDuplicateEntry(fmt.Errorf("create customer: %w", dup)) {
		t.Fatal("wrapped 1062 must still be recognized")
	}
	if IsDuplicateEntry(&mysql.MySQLError{Number: 1452, Message: "foreign key constraint fails"}) {
		t.Fatal("other MySQL errors are not duplicates")
	}
	if IsDuplicateEntry(errors.New("connection refused")) {
		t.Fatal("non-MySQL errors are not duplicates")
	}
	if IsDuplicateEntry(nil) {
		t.Fatal("nil is not a duplicate")
	}
}
