package srvreg

import (
	"net/http"

	"github.com/ahmadzakiakmal/weldledger/account"
)

func (sr *ServiceRegistry) registerAuth() {
	sr.RegisterHandler(http.MethodPost, "/api/auth/login", Public, sr.LoginHandler)
	sr.RegisterHandler(http.MethodPost, "/api/auth/register", Public, sr.SignupHandler)
	sr.RegisterHandler(http.MethodPost, "/api/auth/refreshToken", Public, sr.RefreshHandler)

	sr.RegisterHandler(http.MethodPost, "/api/employee/request-access", AnyRole, sr.RequestAccessHandler)
	sr.RegisterHandler(http.MethodGet, "/api/employee/check-access", AnyRole, sr.CheckAccessHandler)
	sr.RegisterHandler(http.MethodPost, "/api/employee/logout", AnyRole, sr.LogoutHandler)
	sr.RegisterHandler(http.MethodPut, "/api/employee/change-password", AnyRole, sr.ChangePasswordHandler)
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (sr *ServiceRegistry) LoginHandler(req *Request) (*Response, error) {
	var b loginBody
	if err := req.Decode(&b); err != nil {
		return nil, err
	}
	session, err := sr.svc.Accounts.Login(req.Context(), b.Username, b.Password)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{
		"message":      "Login successful",
		"accesstoken":  session.AccessToken,
		"refreshToken": session.RefreshToken,
		"employeeId":   session.EmployeeID,
		"role":         session.Role,
	})
}

func (sr *ServiceRegistry) SignupHandler(req *Request) (*Response, error) {
	var in account.RegisterInput
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	e, err := sr.svc.Accounts.Register(req.Context(), in)
	if err != nil {
		return nil, err
	}
	return created(map[string]any{"message": "Employee registered successfully. Wait for admin approval", "employee": e})
}

func (sr *ServiceRegistry) RefreshHandler(req *Request) (*Response, error) {
	var b struct {
		RefreshToken string `json:"refreshToken"`
	}
	if req.Body != "" {
		if err := req.Decode(&b); err != nil {
			return nil, err
		}
	}
	token, err := sr.svc.Accounts.Refresh(b.RefreshToken)
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Token refreshed", "accesstoken": token})
}

func (sr *ServiceRegistry) RequestAccessHandler(req *Request) (*Response, error) {
	grant, err := sr.svc.Access.RequestAccess(req.Context(), req.caller())
	if err != nil {
		return nil, err
	}
	return created(map[string]any{"message": "Access request sent successfully", "accessRequest": grant})
}

func (sr *ServiceRegistry) CheckAccessHandler(req *Request) (*Response, error) {
	grant, err := sr.svc.Access.CheckAccess(req.Context(), req.caller())
	if err != nil {
		return nil, err
	}
	return ok(map[string]any{"message": "Access granted", "accessType": grant.AccessType, "expiresAt": grant.ExpiresAt})
}

func (sr *ServiceRegistry) LogoutHandler(req *Request) (*Response, error) {
	if err := sr.svc.Accounts.Logout(req.Context(), req.caller()); err != nil {
		return nil, err
	}
	return message("Logout successful")
}

func (sr *ServiceRegistry) ChangePasswordHandler(req *Request) (*Response, error) {
	var b struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := req.Decode(&b); err != nil {
		return nil, err
	}
	if err := sr.svc.Accounts.ChangePassword(req.Context(), req.caller(), b.OldPassword, b.NewPassword); err != nil {
		return nil, err
	}
	return message("Password changed successfully")
}
