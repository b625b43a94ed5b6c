package accounts

type createAccountRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=255"`
	Type     string `json:"type" validate:"required"`
	Category string `json:"category" validate:"max=64"`
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

func (req createAccountRequest) toInput() (CreateInput, error) {
	t, err := ParseAccountType(req.Type)
	if err != nil {
		return CreateInput{}, err
	}
	return CreateInput{
		Code:     req.Code,
		Name:     req.Name,
		Type:     t,
		Category: req.Category,
		ParentID: req.ParentID,
	}, nil
}

type updateAccountRequest struct {
	Code     *string `json:"code" validate:"omitempty,max=32"`
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Type     *string `json:"type"`
	Category *string `json:"category" validate:"omitempty,max=64"`
	ParentID *int64  `json:"parent_id" validate:"omitempty,gt=0"`
	IsActive *bool   `json:"is_active"`
}

func (req updateAccountRequest) toInput() (UpdateInput, error) {
	in := UpdateInput{
		Code:     req.Code,
		Name:     req.Name,
		Category: req.Category,
		ParentID: req.ParentID,
		IsActive: req.IsActive,
	}
	if req.Type != nil {
		t, err := ParseAccountType(*req.Type)
		if err != nil {
			return UpdateInput{}, err
		}
		in.Type = &t
	}
	return in, nil
}
