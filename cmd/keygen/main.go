// Утилита генерации ключа шифрования для переменной ENCRYPTION_KEY:
//
//	go run ./cmd/keygen
//
// Печатает 32-символьный ключ AES-256. Смена ключа делает ранее
// сохранённые API ключи площадок нечитаемыми.
package main

import (
	"fmt"
	"os"

	"crossarb/pkg/crypto"
)

func main() {
	key, err := crypto.GenerateKeyString()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(key)
}
